/*
Package layering implements the Layered-State Engine described by the
component design's §4.4: a commit's metadata dictionary carries its own
(base-ref, layered-packages) state, and every mutation — Install,
InstallFresh, Remove — is realized by Rebuild, which never applies a
diff. It always starts from the base commit and reinstalls the full
layered set:

	Engine.Install/Remove          Engine.InstallFresh
	        │                              │
	        ▼                              ▼
	  LoadState(booted)             new LayeredState(base, pkgs)
	        │                              │
	        └──────────────┬───────────────┘
	                       ▼
	                  Engine.rebuild
	      checkout base → T → install layered pkgs into T
	      → merge T/etc into T/usr/etc → normalize(T)
	      → commit.GenerateFromRootfs(T) → move <os>/layered ref
	      → (optional) Deploy

This makes every produced commit self-describing: loading it back
reproduces exactly the (base-ref, layered) pair Rebuild was invoked
with, at the cost of redoing the package installation on every call.
*/
package layering
