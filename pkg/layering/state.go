// Package layering implements the Layered-State Engine: the
// base-ref-plus-supplemental-packages model serialized into every
// produced commit's metadata dictionary, and the from-scratch Rebuild
// algorithm that re-derives a commit from a base and a package set.
// Grounded on original_source's layered_packages.rs, translated from
// libostree's repo/deployment handles into store.Gateway and
// commit.GenerateFromRootfs.
package layering

import (
	"sort"
	"strings"

	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

// Metadata keys persisted into every commit produced by this engine, per
// the component design's commit-metadata-keys table.
const (
	MetaKeyVersion  = "version"
	MetaKeyBaseRef  = "pacmanostree.base-ref"
	MetaKeyLayered  = "pacmanostree.layered"
	MetaKeyInputHash = "pacmanostree.inputhash"

	stateVersion = "1.0"
)

// LoadState deserializes a types.LayeredState from a commit's metadata
// dictionary. base-ref defaults to types.DefaultBaseRef when absent;
// layered is parsed into a sorted, deduplicated set. deployedCommit is
// the checksum of the commit the state was loaded from (the source
// commit, not its root tree).
func LoadState(c *types.Commit, deployedCommit types.Checksum) *types.LayeredState {
	state := &types.LayeredState{
		BaseRef:        types.DefaultBaseRef,
		DeployedCommit: deployedCommit,
	}
	if c == nil || c.Metadata == nil {
		return state
	}
	if v, ok := c.Metadata[MetaKeyBaseRef]; ok && v.Str != "" {
		state.BaseRef = types.SymbolicRef(v.Str)
	}
	if v, ok := c.Metadata[MetaKeyLayered]; ok && v.Str != "" {
		state.LayeredPackages = splitSortedUnique(v.Str)
	}
	return state
}

// EncodeMetadata serializes state into the commit-metadata dictionary
// shape persisted by Rebuild: version, base-ref always present; layered
// omitted entirely when empty.
func EncodeMetadata(state *types.LayeredState) types.MetadataDict {
	dict := types.MetadataDict{
		MetaKeyVersion: types.StringMeta(stateVersion),
		MetaKeyBaseRef: types.StringMeta(string(state.BaseRef)),
	}
	if len(state.LayeredPackages) > 0 {
		sorted := make([]string, len(state.LayeredPackages))
		copy(sorted, state.LayeredPackages)
		sort.Strings(sorted)
		dict[MetaKeyLayered] = types.StringMeta(strings.Join(sorted, ","))
	}
	return dict
}

func splitSortedUnique(s string) []string {
	parts := strings.Split(s, ",")
	set := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		if p != "" {
			set[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// containsPackage reports whether name is present in sorted set pkgs.
func containsPackage(pkgs []string, name string) bool {
	i := sort.SearchStrings(pkgs, name)
	return i < len(pkgs) && pkgs[i] == name
}

// addPackages returns pkgs with each of add inserted, sorted and
// deduplicated, plus the subset of add that was not already present.
func addPackages(pkgs []string, add []string) (result []string, newlyAdded []string) {
	set := make(map[string]struct{}, len(pkgs)+len(add))
	for _, p := range pkgs {
		set[p] = struct{}{}
	}
	for _, p := range add {
		if _, exists := set[p]; !exists {
			set[p] = struct{}{}
			newlyAdded = append(newlyAdded, p)
		}
	}
	result = make([]string, 0, len(set))
	for p := range set {
		result = append(result, p)
	}
	sort.Strings(result)
	sort.Strings(newlyAdded)
	return result, newlyAdded
}

// removePackages returns pkgs with each of remove deleted.
func removePackages(pkgs []string, remove []string) []string {
	removeSet := make(map[string]struct{}, len(remove))
	for _, p := range remove {
		removeSet[p] = struct{}{}
	}
	out := make([]string, 0, len(pkgs))
	for _, p := range pkgs {
		if _, ok := removeSet[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}
