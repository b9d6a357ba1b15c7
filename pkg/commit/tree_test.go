package commit

import (
	"context"
	"testing"

	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

func TestMutableTreeWriteOrderIndependent(t *testing.T) {
	ctx := context.Background()
	gw := openTestStore(t)

	build := func(names []string) types.Checksum {
		tx, err := gw.Transaction(ctx)
		if err != nil {
			t.Fatal(err)
		}
		defer tx.Abort()

		metaSum := tx.WriteMetadata(types.DirMeta{Mode: 0o755})
		tree := NewMutableTree(metaSum)
		for _, n := range names {
			fileSum := tx.WriteRegularFile(types.RegularFile{Mode: 0o644, Content: []byte(n)})
			tree.SetFile(n, fileSum)
		}
		sum, err := tree.Write(tx)
		if err != nil {
			t.Fatal(err)
		}
		return sum
	}

	a := build([]string{"a", "b", "c"})
	b := build([]string{"c", "a", "b"})
	if a != b {
		t.Errorf("tree checksum depends on insertion order: %s vs %s", a, b)
	}
}

func TestMutableTreeRemoveEntry(t *testing.T) {
	tree := NewMutableTree(types.Checksum{})
	tree.SetFile("a", types.Checksum{1})
	tree.SetSubtree("b", NewMutableTree(types.Checksum{}))
	if !tree.HasEntry("a") || !tree.HasEntry("b") {
		t.Fatal("expected both entries present")
	}
	tree.RemoveEntry("a")
	if tree.HasEntry("a") {
		t.Error("RemoveEntry did not remove leaf entry")
	}
	if len(tree.order) != 1 || tree.order[0] != "b" {
		t.Errorf("order after removal = %v, want [b]", tree.order)
	}
}

func TestMutableTreeSetSubtreeChecksumReplacesPendingSubtree(t *testing.T) {
	tree := NewMutableTree(types.Checksum{})
	tree.SetSubtree("etc", NewMutableTree(types.Checksum{}))
	var precomputed types.Checksum
	precomputed[0] = 0xAB
	tree.SetSubtreeChecksum("etc", precomputed)

	if tree.Subtree("etc") != nil {
		t.Error("expected pending subtree to be replaced by a precomputed checksum entry")
	}
	e, ok := tree.entries["etc"]
	if !ok || e.kind != entryPrecomputedDir || e.sum != precomputed {
		t.Errorf("entries[etc] = %+v, want precomputed %s", e, precomputed)
	}
}
