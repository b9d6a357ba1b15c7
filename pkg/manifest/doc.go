/*
Package manifest parses the declarative YAML manifest named by §6 of the
component design: an unordered mapping naming packages, services,
post-install scripts, pacman repos, and other manifests to include.

Grounded on original_source's compose.rs (ConfigYaml, its merge method,
and yaml_parse's recursive include resolution), extended with the
ref/repos fields the component design adds and resolving include paths
relative to the including file rather than the process's working
directory.

	Load("manifest.yaml")
	        │
	        ▼
	  parse YAML into Manifest
	        │
	        ▼
	  for each include path (resolved relative to this file's dir):
	        Load(included) → Merge(included)
	        │
	        ▼
	  fully merged Manifest (ref replaced, lists concatenated)
*/
package manifest
