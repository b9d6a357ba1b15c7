/*
Package store implements the Object Store Gateway: a content-addressed
repository of commits, directory trees, directory metadata, symlinks, and
regular files, backed by a BoltDB ref/commit index over a containerd local
content store.

# Architecture

	┌──────────────────── OBJECT STORE GATEWAY ────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              blobStore                       │          │
	│  │  containerd content/local, rooted at         │          │
	│  │  <dir>/objects, digest-addressed, natural    │          │
	│  │  dedup via Writer.Commit                     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              boltGateway                     │          │
	│  │  <dir>/refs.db                               │          │
	│  │  bucket "refs"    name -> checksum           │          │
	│  │  bucket "commits" checksum -> JSON record    │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Transaction                     │          │
	│  │  stage(encode) -> checksum immediately;      │          │
	│  │  Commit() flushes staged blobs then moves    │          │
	│  │  the ref; Abort() discards everything staged │          │
	│  └──────────────────────────────────────────────┘          │
	└────────────────────────────────────────────────────────────┘

# Object encoding

Every object kind (RegularFile, Symlink, DirMeta, DirTree) has a single
canonical byte encoding (encode.go): xattrs sorted by key, DirTree entries
sorted by name. A checksum is sha256 of exactly that byte sequence, so
identical logical content always produces identical checksums regardless
of insertion order — this is what makes two "from scratch" rebuilds with
the same inputs converge on the same root-tree checksum.

# Transactions

The store does not limit how many transactions are open at once:
Transaction never refuses a second one, and each transaction's Commit
flushes its own staged objects independently. Writes made through a
Transaction (WriteMetadata, WriteSymlink, WriteRegularFile, WriteDirTree,
WriteCommit) compute and return checksums immediately — checksums are
content-derived, not order-derived — but nothing is visible to readers
until Commit succeeds. Abort (typically deferred right after Transaction
returns) discards everything staged; it is a no-op once Commit has run.
Reads never take a transaction's lock.
*/
package store
