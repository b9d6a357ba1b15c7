// Package store implements the Object Store Gateway: a content-addressed
// repository of commits, directory trees, directory metadata, symlinks,
// and regular files, plus a namespace of symbolic refs pointing at commits.
//
// Blob content is addressed and deduplicated by containerd's local content
// store (github.com/containerd/containerd/content/local); the symbolic-ref
// namespace and each commit's record (parent, root, metadata, time) are
// tracked in a BoltDB index, the same way this package's teacher tracked cluster
// entities in BoltDB. Every write happens inside a Transaction: objects are
// only visible to readers once Commit succeeds.
package store

import (
	"context"

	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

// Gateway is the Object Store Gateway described by the component design:
// open, resolve, read_commit, write_metadata, write_symlink, write_mtree,
// write_commit, set_ref, and a scoped transaction.
type Gateway interface {
	// Resolve looks up ref's checksum. If allowMissing is false and ref is
	// unknown, it returns a store-unavailable error; if true, it returns
	// the zero Checksum and a nil error.
	Resolve(ctx context.Context, ref types.SymbolicRef, allowMissing bool) (types.Checksum, error)

	// ReadCommit loads ref's commit object and resolves it to a root-tree
	// checksum.
	ReadCommit(ctx context.Context, ref types.SymbolicRef) (*types.Commit, types.Checksum, error)

	// ReadCommitByChecksum loads a commit directly by checksum, without
	// going through a ref.
	ReadCommitByChecksum(ctx context.Context, sum types.Checksum) (*types.Commit, error)

	// ReadDirTree loads a persisted DirTree object.
	ReadDirTree(ctx context.Context, sum types.Checksum) (*types.DirTree, error)

	// ReadDirMeta loads a persisted DirMeta object.
	ReadDirMeta(ctx context.Context, sum types.Checksum) (*types.DirMeta, error)

	// ReadRegularFile loads a persisted RegularFile object, including its
	// content.
	ReadRegularFile(ctx context.Context, sum types.Checksum) (*types.RegularFile, error)

	// ReadSymlink loads a persisted Symlink object.
	ReadSymlink(ctx context.Context, sum types.Checksum) (*types.Symlink, error)

	// Size returns the persisted size in bytes of the object's content
	// payload, used by the encapsulator's size accounting.
	Size(ctx context.Context, sum types.Checksum) (int64, error)

	// SetRef atomically moves a symbolic ref to point at sum.
	SetRef(ctx context.Context, ref types.SymbolicRef, sum types.Checksum) error

	// Transaction opens a write scope. It does not check whether another
	// transaction is already open. The returned Transaction must be Aborted (typically via a deferred call
	// immediately after this returns) unless Commit succeeds.
	Transaction(ctx context.Context) (*Transaction, error)

	// Close releases the underlying content store and index.
	Close() error
}

// Open opens (creating if absent) a store rooted at dir: a containerd
// local content store under dir/objects and a BoltDB ref/commit index at
// dir/refs.db.
func Open(dir string) (Gateway, error) {
	return openBoltGateway(dir)
}
