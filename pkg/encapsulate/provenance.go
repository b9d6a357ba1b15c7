// Package encapsulate implements §4.5's content-grouping algorithm: see
// doc.go for the package-level overview.
package encapsulate

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/ImmutableArch/pacman-ostree/pkg/store"
	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

// PathChecksum names one path and the checksum of the object found
// there.
type PathChecksum struct {
	Path     string
	Checksum types.Checksum
}

// Provenance is the output of BuildProvenance: every content group the
// commit's objects were assigned to, plus enough per-object attribution
// to drive layer packing.
type Provenance struct {
	Groups []types.ContentGroup

	// ObjectPackage maps a checksum to the package (or kernel, or the
	// unpackaged sentinel) content-id it was attributed to. A checksum
	// with no non-component-owned occurrence has no entry here.
	ObjectPackage map[types.Checksum]string

	// PackageObjects maps a package/kernel/unpackaged content-id to
	// every (path, checksum) pair it owns — the paths backing
	// ObjectPackage, kept for layer packing.
	PackageObjects map[string][]PathChecksum

	// ComponentObjects maps a component content-id to every
	// (path, checksum) pair it owns.
	ComponentObjects map[string][]PathChecksum

	// Sizes maps a content-id to the total persisted size, in bytes, of
	// every distinct object attributed to it.
	Sizes map[string]int64
}

// BuildProvenance implements §4.5 steps 1-8: seed the unpackaged
// sentinel, index packages into content groups, special-case the
// kernel's initramfs, walk the commit tree attributing every object via
// user.component xattrs and package ownership, and sum persisted sizes
// per content group.
func BuildProvenance(ctx context.Context, gw store.Gateway, rootSum types.Checksum, packages []types.PackageMeta) (*Provenance, error) {
	// Step 1: seed the unpackaged sentinel so it sorts last.
	groups := []types.ContentGroup{{
		ContentID:        types.UnpackagedContentID,
		Name:             "unpackaged",
		SourceID:         types.UnpackagedContentID,
		ChangeTimeOffset: math.MaxUint32,
		ChangeFrequency:  math.MaxUint32,
	}}

	// Step 2: index packages. A path may be provided by more than one
	// package; ties are broken by sorted content-id when consumed below.
	// Provided paths are keyed without their leading "/" so they match the
	// tree walk's root-relative paths.
	pathPackages := make(map[string][]string, 256)
	var low int64
	haveBounds := false
	for _, p := range packages {
		bt := p.BuildTime.Unix()
		if !haveBounds || bt < low {
			low = bt
			haveBounds = true
		}
	}
	for _, p := range packages {
		id := p.NEVRA()
		for _, provided := range p.Provides {
			key := strings.TrimPrefix(provided, "/")
			pathPackages[key] = append(pathPackages[key], id)
		}
	}
	for key, ids := range pathPackages {
		sort.Strings(ids)
		pathPackages[key] = ids
	}

	// Step 3: finalize one content group per package.
	for _, p := range packages {
		offset := uint32(0)
		if haveBounds {
			offset = uint32((p.BuildTime.Unix() - low) / 3600)
		}
		id := p.NEVRA()
		groups = append(groups, types.ContentGroup{
			ContentID:        id,
			Name:             p.Name,
			SourceID:         id,
			ChangeTimeOffset: offset,
			ChangeFrequency:  uint32(len(p.Changelogs)),
		})
	}

	// Step 4: special-case the kernel's initramfs.
	skip := map[string]bool{}
	var kernelGroup *types.ContentGroup
	imgPath, kver, found, err := findKernelInitramfs(ctx, gw, rootSum)
	if err != nil {
		return nil, err
	}
	if found {
		kernelID := kernelContentID(kver)
		kernelGroup = &types.ContentGroup{ContentID: kernelID, Name: kernelID, SourceID: kernelID}
		pathPackages[imgPath] = []string{kernelID}
		skip[imgPath] = true
	}

	// Step 5: walk the tree.
	w := &walker{
		gw:            gw,
		skip:          skip,
		pathComponent: make(map[string]string, 256),
		checksumPaths: make(map[types.Checksum][]string, 256),
		componentIDs:  make(map[string]bool),
	}
	if err := w.walk(ctx, rootSum, "", ""); err != nil {
		return nil, err
	}
	if kernelGroup != nil {
		groups = append(groups, *kernelGroup)
	}

	// Step 6: component metadata, sorted so output is deterministic.
	componentNames := make([]string, 0, len(w.componentIDs))
	for name := range w.componentIDs {
		componentNames = append(componentNames, name)
	}
	sort.Strings(componentNames)
	for _, name := range componentNames {
		groups = append(groups, types.ContentGroup{
			ContentID:        name,
			Name:             name,
			SourceID:         name,
			ChangeTimeOffset: math.MaxUint32,
			ChangeFrequency:  math.MaxUint32,
		})
	}

	// Step 7: per-object provenance.
	objectPackage := make(map[types.Checksum]string, len(w.checksumPaths))
	packageObjects := make(map[string][]PathChecksum)
	componentObjects := make(map[string][]PathChecksum)

	for checksum, paths := range w.checksumPaths {
		sort.Strings(paths)
		candidates := map[string]bool{}
		var nonComponentPaths []string
		anyComponent := false
		for _, p := range paths {
			if comp, ok := w.pathComponent[p]; ok {
				componentObjects[comp] = append(componentObjects[comp], PathChecksum{Path: p, Checksum: checksum})
				anyComponent = true
				continue
			}
			nonComponentPaths = append(nonComponentPaths, p)
			for _, id := range pathPackages[p] {
				candidates[id] = true
			}
		}

		var id string
		switch {
		case len(candidates) > 0:
			ids := make([]string, 0, len(candidates))
			for c := range candidates {
				ids = append(ids, c)
			}
			sort.Strings(ids)
			id = ids[0] // first package owner, sorted
		case len(nonComponentPaths) > 0:
			// Non-component paths exist but none has a package owner:
			// an unpackaged loose file, possibly deduped against a
			// component-owned path too (anyComponent may be true).
			id = types.UnpackagedContentID
		default:
			// Every path touching this checksum is component-owned.
			id = ""
		}
		if id != "" {
			objectPackage[checksum] = id
			for _, p := range nonComponentPaths {
				packageObjects[id] = append(packageObjects[id], PathChecksum{Path: p, Checksum: checksum})
			}
		}
	}
	for _, list := range packageObjects {
		sort.Slice(list, func(i, j int) bool { return list[i].Path < list[j].Path })
	}
	for _, list := range componentObjects {
		sort.Slice(list, func(i, j int) bool { return list[i].Path < list[j].Path })
	}

	// Step 8: size each content group.
	sizes, err := sizeContentGroups(ctx, gw, packageObjects, componentObjects)
	if err != nil {
		return nil, err
	}

	return &Provenance{
		Groups:           groups,
		ObjectPackage:    objectPackage,
		PackageObjects:   packageObjects,
		ComponentObjects: componentObjects,
		Sizes:            sizes,
	}, nil
}

// sizeContentGroups sums the persisted size of every distinct object
// attributed to each content-id. A checksum shared between a
// package-owned path and a component-owned path (e.g. identical content
// installed at two locations) is sized once per group it contributes
// to, never globally deduplicated across groups.
func sizeContentGroups(ctx context.Context, gw store.Gateway, packageObjects, componentObjects map[string][]PathChecksum) (map[string]int64, error) {
	members := make(map[string]map[types.Checksum]bool)
	add := func(id string, c types.Checksum) {
		set, ok := members[id]
		if !ok {
			set = make(map[types.Checksum]bool)
			members[id] = set
		}
		set[c] = true
	}
	for id, entries := range packageObjects {
		for _, pc := range entries {
			add(id, pc.Checksum)
		}
	}
	for id, entries := range componentObjects {
		for _, pc := range entries {
			add(id, pc.Checksum)
		}
	}

	sizes := make(map[string]int64, len(members))
	for id, set := range members {
		var total int64
		for checksum := range set {
			n, err := gw.Size(ctx, checksum)
			if err != nil {
				return nil, err
			}
			total += n
		}
		sizes[id] = total
	}
	return sizes, nil
}
