/*
Package commit implements the Commit Generator described by the
component design: a forward path (GenerateFromRootfs) that walks a
normalized rootfs directory into a store.Transaction, producing an
immutable commit, and a reverse path (Checkout) that serializes a
commit back into a flat directory via a tar-archive pipe bridge.

	rootfs/                     MutableTree                  store.Transaction
	  boot/        ──┐            "/" (DirMeta)  ──────────►  WriteMetadata
	  etc/           ├─ walk ──►  "etc" (subtree) ──────────►  WriteDirTree (recursive)
	  usr/           │            "usr" (subtree)
	  sysroot/     ──┘            "sysroot" (empty, not descended)
	                     │
	                     ▼
	           relocateEtc (§4.3.3)
	                     │
	                     ▼
	             root.Write(tx) ──► WriteCommit ──► tx.Commit(ref)

MutableTree mirrors libostree's mutable-tree API: child objects are
staged (and their checksums known) before the parent DirTree is
written, satisfying the store's ordering guarantee. Every directory,
file, and symlink passes through the Modifier (skip-xattrs,
canonical-permissions) so two builds of the same inputs hash
identically regardless of incidental package-manager metadata.
*/
package commit
