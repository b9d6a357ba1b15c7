package layering

import (
	"reflect"
	"testing"

	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

func TestLoadStateDefaultsWhenMetadataAbsent(t *testing.T) {
	state := LoadState(&types.Commit{}, types.Checksum{1})
	if state.BaseRef != types.DefaultBaseRef {
		t.Errorf("BaseRef = %s, want default %s", state.BaseRef, types.DefaultBaseRef)
	}
	if len(state.LayeredPackages) != 0 {
		t.Errorf("LayeredPackages = %v, want empty", state.LayeredPackages)
	}
}

func TestEncodeDecodeStateRoundTrip(t *testing.T) {
	state := &types.LayeredState{
		BaseRef:         types.SymbolicRef("archlinux/x86_64/base"),
		LayeredPackages: []string{"vim", "curl"},
	}
	dict := EncodeMetadata(state)
	c := &types.Commit{Metadata: dict}

	loaded := LoadState(c, types.Checksum{9})
	if loaded.BaseRef != state.BaseRef {
		t.Errorf("BaseRef round-trip = %s, want %s", loaded.BaseRef, state.BaseRef)
	}
	want := []string{"curl", "vim"}
	if !reflect.DeepEqual(loaded.LayeredPackages, want) {
		t.Errorf("LayeredPackages round-trip = %v, want %v", loaded.LayeredPackages, want)
	}
	if loaded.DeployedCommit != (types.Checksum{9}) {
		t.Errorf("DeployedCommit = %v, want {9}", loaded.DeployedCommit)
	}
}

func TestEncodeMetadataOmitsLayeredWhenEmpty(t *testing.T) {
	dict := EncodeMetadata(&types.LayeredState{BaseRef: types.DefaultBaseRef})
	if _, ok := dict[MetaKeyLayered]; ok {
		t.Error("expected layered key to be omitted when empty")
	}
	if dict[MetaKeyVersion].Str != stateVersion {
		t.Errorf("version = %q, want %q", dict[MetaKeyVersion].Str, stateVersion)
	}
}

func TestAddPackagesTracksNewlyAdded(t *testing.T) {
	result, newly := addPackages([]string{"bash"}, []string{"bash", "curl", "vim"})
	wantResult := []string{"bash", "curl", "vim"}
	wantNewly := []string{"curl", "vim"}
	if !reflect.DeepEqual(result, wantResult) {
		t.Errorf("result = %v, want %v", result, wantResult)
	}
	if !reflect.DeepEqual(newly, wantNewly) {
		t.Errorf("newly = %v, want %v", newly, wantNewly)
	}
}

func TestRemovePackages(t *testing.T) {
	result := removePackages([]string{"bash", "curl", "vim"}, []string{"curl"})
	want := []string{"bash", "vim"}
	if !reflect.DeepEqual(result, want) {
		t.Errorf("result = %v, want %v", result, want)
	}
}

func TestContainsPackage(t *testing.T) {
	sorted := []string{"bash", "curl", "vim"}
	if !containsPackage(sorted, "curl") {
		t.Error("expected curl to be found")
	}
	if containsPackage(sorted, "zsh") {
		t.Error("did not expect zsh to be found")
	}
}
