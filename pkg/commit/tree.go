package commit

import (
	"github.com/ImmutableArch/pacman-ostree/pkg/store"
	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

type treeEntryKind int

const (
	entryFile treeEntryKind = iota
	entryPrecomputedDir
	entrySubtree
)

type treeEntry struct {
	kind treeEntryKind
	sum  types.Checksum // valid for entryFile, entryPrecomputedDir
	sub  *MutableTree   // valid for entrySubtree
}

// MutableTree is the in-memory builder for a directory-tree object: an
// ordered map of name -> entry plus the checksum of this directory's own
// metadata object. An entry is either a leaf object checksum, a nested
// MutableTree still awaiting Write, or a directory checksum that has
// already been persisted elsewhere (see SetSubtreeChecksum).
type MutableTree struct {
	metaChecksum types.Checksum
	order        []string
	entries      map[string]treeEntry
}

// NewMutableTree creates an empty tree bound to the given directory
// metadata checksum.
func NewMutableTree(metaChecksum types.Checksum) *MutableTree {
	return &MutableTree{
		metaChecksum: metaChecksum,
		entries:      map[string]treeEntry{},
	}
}

func (t *MutableTree) set(name string, e treeEntry) {
	if _, exists := t.entries[name]; !exists {
		t.order = append(t.order, name)
	}
	t.entries[name] = e
}

// SetFile records a leaf object (regular file or symlink) checksum under
// name, replacing any existing entry.
func (t *MutableTree) SetFile(name string, sum types.Checksum) {
	t.set(name, treeEntry{kind: entryFile, sum: sum})
}

// SetSubtree records a nested MutableTree under name, replacing any
// existing entry.
func (t *MutableTree) SetSubtree(name string, sub *MutableTree) {
	t.set(name, treeEntry{kind: entrySubtree, sub: sub})
}

// Subtree returns the named sub-tree, or nil if name is not a pending
// (unwritten) directory entry of t.
func (t *MutableTree) Subtree(name string) *MutableTree {
	e, ok := t.entries[name]
	if !ok || e.kind != entrySubtree {
		return nil
	}
	return e.sub
}

// SetSubtreeChecksum records a directory entry whose DirTree checksum is
// already known because it was persisted separately. Used by the
// /etc<->/usr/etc relocation, which must reuse an already-written
// sub-tree's checksum verbatim rather than re-wrapping it.
func (t *MutableTree) SetSubtreeChecksum(name string, sum types.Checksum) {
	t.set(name, treeEntry{kind: entryPrecomputedDir, sum: sum})
}

// HasEntry reports whether name is present, in any form.
func (t *MutableTree) HasEntry(name string) bool {
	_, ok := t.entries[name]
	return ok
}

// RemoveEntry deletes name from the tree, whichever kind it is.
func (t *MutableTree) RemoveEntry(name string) {
	if _, ok := t.entries[name]; !ok {
		return
	}
	delete(t.entries, name)
	for i, n := range t.order {
		if n == name {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Write recursively persists sub-trees depth-first (children before
// parents, per the store's ordering guarantee) and returns this tree's
// own checksum.
func (t *MutableTree) Write(tx *store.Transaction) (types.Checksum, error) {
	entries := make([]types.DirEntry, 0, len(t.order))
	for _, name := range t.order {
		e := t.entries[name]
		switch e.kind {
		case entrySubtree:
			childSum, err := e.sub.Write(tx)
			if err != nil {
				return types.Checksum{}, err
			}
			entries = append(entries, types.DirEntry{Name: name, IsDir: true, Checksum: childSum})
		case entryPrecomputedDir:
			entries = append(entries, types.DirEntry{Name: name, IsDir: true, Checksum: e.sum})
		default:
			entries = append(entries, types.DirEntry{Name: name, IsDir: false, Checksum: e.sum})
		}
	}
	return tx.WriteDirTree(types.DirTree{MetaChecksum: t.metaChecksum, Entries: entries}), nil
}
