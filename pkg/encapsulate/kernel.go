package encapsulate

import (
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/ImmutableArch/pacman-ostree/pkg/store"
	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

const initramfsName = "initramfs.img"

// findKernelInitramfs implements §4.5 step 4: it locates
// usr/lib/modules/<version>/initramfs.img, matching Arch's kernel
// package layout, and reports the first kernel-version directory
// (in sorted order, for determinism) that carries an initramfs image.
func findKernelInitramfs(ctx context.Context, gw store.Gateway, rootSum types.Checksum) (imgPath, kernelVersion string, found bool, err error) {
	modulesSum, ok, err := lookupDir(ctx, gw, rootSum, "usr", "lib", "modules")
	if err != nil || !ok {
		return "", "", false, err
	}

	modulesTree, err := gw.ReadDirTree(ctx, modulesSum)
	if err != nil {
		return "", "", false, err
	}

	versions := make([]string, 0, len(modulesTree.Entries))
	byName := make(map[string]types.DirEntry, len(modulesTree.Entries))
	for _, e := range modulesTree.Entries {
		if e.IsDir {
			versions = append(versions, e.Name)
			byName[e.Name] = e
		}
	}
	sort.Strings(versions)

	for _, v := range versions {
		verTree, err := gw.ReadDirTree(ctx, byName[v].Checksum)
		if err != nil {
			return "", "", false, err
		}
		if _, ok := findEntry(verTree, initramfsName); ok {
			return path.Join("usr", "lib", "modules", v, initramfsName), v, true, nil
		}
	}
	return "", "", false, nil
}

// lookupDir walks a chain of directory names from root, returning the
// checksum of the final directory if every segment exists and is itself
// a directory.
func lookupDir(ctx context.Context, gw store.Gateway, rootSum types.Checksum, names ...string) (types.Checksum, bool, error) {
	cur := rootSum
	for _, name := range names {
		tree, err := gw.ReadDirTree(ctx, cur)
		if err != nil {
			return types.Checksum{}, false, err
		}
		e, ok := findEntry(tree, name)
		if !ok || !e.IsDir {
			return types.Checksum{}, false, nil
		}
		cur = e.Checksum
	}
	return cur, true, nil
}

// findEntry binary-searches a DirTree's entries, which are kept sorted
// by name.
func findEntry(tree *types.DirTree, name string) (types.DirEntry, bool) {
	i := sort.Search(len(tree.Entries), func(i int) bool { return tree.Entries[i].Name >= name })
	if i < len(tree.Entries) && tree.Entries[i].Name == name {
		return tree.Entries[i], true
	}
	return types.DirEntry{}, false
}

func kernelContentID(version string) string {
	return fmt.Sprintf("initramfs (kernel %s)", version)
}
