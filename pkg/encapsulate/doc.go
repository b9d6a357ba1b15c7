/*
Package encapsulate implements the Chunked Encapsulator described by the
component design's §4.5: it assigns every object reachable from a commit
to a provenance group (a package, a user.component override, the kernel
special case, or the catch-all unpackaged sentinel), then hands the
resulting content groups and per-object provenance to an archive
producer that packs them into at most max_layers OCI image layers.

	PackageMeta + commit tree
	        │
	        ▼
	  BuildProvenance          (steps 1-7: seed, index, finalize,
	        │                    kernel special-case, tree walk,
	        │                    component metadata, per-object map)
	        ▼
	  sizeContentGroups         (step 8: store.Gateway.Size per group)
	        │
	        ▼
	  Pack                      (step 9: bin-pack groups into layers,
	                              build a v1.Image via go-containerregistry)
	        │
	        ▼
	  WriteOCIArchive           (write the image as an OCI archive)

Grounded on original_source's container.rs (ostree-ext's MappingBuilder
and the surrounding encapsulate command), translated from
ostree_ext::objectsource's ObjectMetaMap/ObjectSourceMeta into
types.ContentGroup/types.ProvenanceMap, and from ostree-ext's own
container encoding into github.com/google/go-containerregistry's
pkg/v1 image and tarball writer.
*/
package encapsulate
