/*
Package types defines the core data structures shared across pacman-ostree's
composition pipeline: checksums, commits, the object kinds persisted by the
store, package metadata, layered state, and the provenance maps consumed by
the encapsulator.

# Core Types

Store primitives:
  - Checksum: a 32-byte SHA-256 digest, the identity of every persisted Object
  - SymbolicRef: a path-like name resolving to a Checksum
  - Commit: an immutable (parent?, root-tree, metadata, time) tuple
  - MetadataDict: the commit's string-keyed metadata

Object kinds (exactly one of these is ever written for a given checksum):
  - RegularFile, Symlink, DirMeta, DirTree

Composition state:
  - PackageMeta: one installed package's identity and provided-files set
  - LayeredState: (base ref, layered packages, deployed commit)
  - ProvenanceMap / ContentGroup: transient structures built during
    encapsulation to assign every path to a content-id

# Error Kinds

Error wraps a fixed set of ErrorKind values matching the error-handling
design: configuration, store-unavailable, invariant-violation,
subprocess-failed, io, encoding, dual-failure. Nothing in this package is
retried; callers either handle or propagate.
*/
package types
