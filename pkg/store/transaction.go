package store

import (
	"context"
	"sync"

	"github.com/ImmutableArch/pacman-ostree/pkg/metrics"
	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

// Transaction is the store's single write scope. Staged writes compute
// and return checksums immediately (checksums are a pure function of
// content), but nothing becomes reachable from a ref until Commit
// succeeds; an aborted or abandoned transaction leaves the store exactly
// as it was. Callers must defer Abort immediately after Transaction
// returns — Abort is a no-op once Commit has run.
type Transaction struct {
	ctx context.Context
	g   *boltGateway

	mu      sync.Mutex
	staged  map[types.Checksum][]byte // checksum -> encoded payload, children before parents by insertion order
	order   []types.Checksum
	commit  *pendingCommit
	done    bool
}

type pendingCommit struct {
	sum types.Checksum
	c   *types.Commit
}

func newTransaction(ctx context.Context, g *boltGateway) *Transaction {
	return &Transaction{ctx: ctx, g: g, staged: map[types.Checksum][]byte{}}
}

func (t *Transaction) stage(encoded []byte) types.Checksum {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sum types.Checksum
	copy(sum[:], checksumOf(encoded))
	if _, exists := t.staged[sum]; !exists {
		t.staged[sum] = encoded
		t.order = append(t.order, sum)
	} else {
		metrics.ObjectsDedupedTotal.Inc()
	}
	return sum
}

// WriteMetadata persists a DirMeta object and returns its checksum.
func (t *Transaction) WriteMetadata(m types.DirMeta) types.Checksum {
	metrics.ObjectsWrittenTotal.WithLabelValues("dirmeta").Inc()
	return t.stage(EncodeDirMeta(m))
}

// WriteRegularFile persists a RegularFile object and returns its checksum.
func (t *Transaction) WriteRegularFile(f types.RegularFile) types.Checksum {
	metrics.ObjectsWrittenTotal.WithLabelValues("regular-file").Inc()
	return t.stage(EncodeRegularFile(f))
}

// WriteSymlink persists a Symlink object and returns its checksum.
func (t *Transaction) WriteSymlink(s types.Symlink) types.Checksum {
	metrics.ObjectsWrittenTotal.WithLabelValues("symlink").Inc()
	return t.stage(EncodeSymlink(s))
}

// WriteDirTree persists a DirTree object (a MutableTree's final form) and
// returns its checksum. Children must already have been staged.
func (t *Transaction) WriteDirTree(tree types.DirTree) types.Checksum {
	metrics.ObjectsWrittenTotal.WithLabelValues("dirtree").Inc()
	return t.stage(EncodeDirTree(tree))
}

// WriteCommit stages the commit object itself and returns its checksum,
// derived from the commit's own encoded form (including Time); the
// commit record is only persisted, and the ref moved, by Commit.
func (t *Transaction) WriteCommit(c types.Commit) types.Checksum {
	raw := encodeCommitForHashing(c)
	var sum types.Checksum
	copy(sum[:], checksumOf(raw))
	t.mu.Lock()
	t.commit = &pendingCommit{sum: sum, c: &c}
	t.mu.Unlock()
	return sum
}

// Commit flushes every staged object to the content store (in staging
// order, which callers are responsible for keeping children-before-
// parents), writes the commit record, and moves ref to the new commit.
// On success the transaction is marked done; subsequent Abort calls are
// no-ops.
func (t *Transaction) Commit(ref types.SymbolicRef) (types.Checksum, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return types.Checksum{}, types.Newf(types.ErrInvariantViolation, "transaction already finalized")
	}
	if t.commit == nil {
		return types.Checksum{}, types.Newf(types.ErrInvariantViolation, "no commit staged")
	}

	for _, sum := range t.order {
		if _, err := t.g.blobs.put(t.ctx, t.staged[sum]); err != nil {
			return types.Checksum{}, err
		}
		metrics.StoreSizeBytes.Add(float64(len(t.staged[sum])))
	}

	if err := t.g.putCommit(t.ctx, t.commit.sum, t.commit.c); err != nil {
		return types.Checksum{}, err
	}

	if ref != "" {
		if err := t.g.SetRef(t.ctx, ref, t.commit.sum); err != nil {
			return types.Checksum{}, err
		}
	}

	t.done = true
	return t.commit.sum, nil
}

// Abort discards all staged writes. Safe to call after a successful
// Commit (no-op) and safe to call multiple times.
func (t *Transaction) Abort() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.staged = nil
	t.order = nil
	t.commit = nil
	t.done = true
}

func checksumOf(raw []byte) []byte {
	sum := sha256Sum(raw)
	return sum[:]
}
