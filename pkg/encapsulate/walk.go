package encapsulate

import (
	"context"
	"path"

	"github.com/ImmutableArch/pacman-ostree/pkg/store"
	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

const componentXattr = "user.component"

// walker implements §4.5 step 5: a recursive descent over the commit
// tree that tracks an inherited "parent component" string, overridden
// per-node by a user.component xattr, and records every leaf path's
// effective component plus the object checksum → paths multimap needed
// by step 7.
type walker struct {
	gw   store.Gateway
	skip map[string]bool

	pathComponent map[string]string
	checksumPaths map[types.Checksum][]string
	componentIDs  map[string]bool
}

func (w *walker) walk(ctx context.Context, treeSum types.Checksum, prefix, parentComponent string) error {
	tree, err := w.gw.ReadDirTree(ctx, treeSum)
	if err != nil {
		return err
	}
	meta, err := w.gw.ReadDirMeta(ctx, tree.MetaChecksum)
	if err != nil {
		return err
	}

	dirComponent := parentComponent
	if v, ok := getXattr(meta.Xattrs, componentXattr); ok && v != "" {
		dirComponent = v
	}

	for _, e := range tree.Entries {
		childPath := path.Join(prefix, e.Name)

		if e.IsDir {
			if err := w.walk(ctx, e.Checksum, childPath, dirComponent); err != nil {
				return err
			}
			continue
		}

		if w.skip[childPath] {
			delete(w.skip, childPath)
			w.checksumPaths[e.Checksum] = append(w.checksumPaths[e.Checksum], childPath)
			continue
		}

		component := dirComponent
		if xattrs, ok := w.leafXattrs(ctx, e.Checksum); ok {
			if v, ok := getXattr(xattrs, componentXattr); ok && v != "" {
				component = v
			}
		}
		if component != "" {
			w.pathComponent[childPath] = component
			w.componentIDs[component] = true
		}
		w.checksumPaths[e.Checksum] = append(w.checksumPaths[e.Checksum], childPath)
	}
	return nil
}

// leafXattrs reads a leaf object's xattrs, trying a regular file first
// and falling back to a symlink — the same dual-kind lookup
// commit.Checkout's writeTarTree uses, since a DirEntry does not record
// which of the two shapes its checksum refers to.
func (w *walker) leafXattrs(ctx context.Context, sum types.Checksum) ([]types.Xattr, bool) {
	if rf, err := w.gw.ReadRegularFile(ctx, sum); err == nil {
		return rf.Xattrs, true
	}
	if sl, err := w.gw.ReadSymlink(ctx, sum); err == nil {
		return sl.Xattrs, true
	}
	return nil, false
}

func getXattr(xattrs []types.Xattr, name string) (string, bool) {
	for _, x := range xattrs {
		if x.Name == name {
			return string(x.Value), true
		}
	}
	return "", false
}
