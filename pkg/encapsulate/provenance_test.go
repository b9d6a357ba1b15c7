package encapsulate

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/ImmutableArch/pacman-ostree/pkg/commit"
	"github.com/ImmutableArch/pacman-ostree/pkg/store"
	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

// buildTestTree assembles a small rootfs-shaped tree directly via
// store.Transaction and commit.MutableTree (rather than
// commit.GenerateFromRootfs over a real directory), so tests can set
// exact xattrs and paths without touching the filesystem.
func buildTestTree(t *testing.T, gw store.Gateway) (rootSum, vimSum, bashSum, confSum, initramfsSum types.Checksum) {
	t.Helper()
	ctx := context.Background()
	tx, err := gw.Transaction(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Abort()

	dirMeta := func() types.Checksum { return tx.WriteMetadata(types.DirMeta{Mode: 0o40755}) }

	root := commit.NewMutableTree(dirMeta())
	usr := commit.NewMutableTree(dirMeta())
	root.SetSubtree("usr", usr)
	bin := commit.NewMutableTree(dirMeta())
	usr.SetSubtree("bin", bin)

	vimSum = tx.WriteRegularFile(types.RegularFile{Mode: 0o100755, Content: []byte("vim-bin")})
	bin.SetFile("vim", vimSum)
	bashSum = tx.WriteRegularFile(types.RegularFile{Mode: 0o100755, Content: []byte("bash-bin")})
	bin.SetFile("bash", bashSum)

	etc := commit.NewMutableTree(dirMeta())
	root.SetSubtree("etc", etc)
	confSum = tx.WriteRegularFile(types.RegularFile{
		Mode:    0o100644,
		Content: []byte("conf"),
		Xattrs:  []types.Xattr{{Name: "user.component", Value: []byte("myapp")}},
	})
	etc.SetFile("myapp.conf", confSum)

	lib := commit.NewMutableTree(dirMeta())
	usr.SetSubtree("lib", lib)
	modules := commit.NewMutableTree(dirMeta())
	lib.SetSubtree("modules", modules)
	ver := commit.NewMutableTree(dirMeta())
	modules.SetSubtree("6.9.1-arch1", ver)
	initramfsSum = tx.WriteRegularFile(types.RegularFile{Mode: 0o100644, Content: []byte("initramfs-content-longer-than-the-rest")})
	ver.SetFile("initramfs.img", initramfsSum)

	rootSum, err = root.Write(tx)
	if err != nil {
		t.Fatal(err)
	}
	tx.WriteCommit(types.Commit{Root: rootSum, Metadata: types.MetadataDict{}})
	if _, err := tx.Commit("test/root"); err != nil {
		t.Fatal(err)
	}
	return rootSum, vimSum, bashSum, confSum, initramfsSum
}

func testPackages() []types.PackageMeta {
	return []types.PackageMeta{
		{
			Name: "vim", Version: "8.2", Arch: "x86_64",
			Provides:   []string{"usr/bin/vim"},
			BuildTime:  time.Unix(1000, 0),
			Changelogs: []time.Time{{}, {}},
		},
		{
			Name: "bash", Version: "5.1", Arch: "x86_64",
			Provides:  []string{"usr/bin/bash"},
			BuildTime: time.Unix(5000, 0),
		},
	}
}

func openEncapsulateTestStore(t *testing.T) store.Gateway {
	t.Helper()
	gw, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { gw.Close() })
	return gw
}

func TestBuildProvenancePackageAttribution(t *testing.T) {
	gw := openEncapsulateTestStore(t)
	rootSum, vimSum, bashSum, confSum, initramfsSum := buildTestTree(t, gw)

	prov, err := BuildProvenance(context.Background(), gw, rootSum, testPackages())
	if err != nil {
		t.Fatalf("BuildProvenance() error = %v", err)
	}

	if got := prov.ObjectPackage[vimSum]; got != "vim-8.2.x86_64" {
		t.Errorf("ObjectPackage[vim] = %q, want vim-8.2.x86_64", got)
	}
	if got := prov.ObjectPackage[bashSum]; got != "bash-5.1.x86_64" {
		t.Errorf("ObjectPackage[bash] = %q, want bash-5.1.x86_64", got)
	}

	entries := prov.ComponentObjects["myapp"]
	if len(entries) != 1 || entries[0].Path != "etc/myapp.conf" || entries[0].Checksum != confSum {
		t.Errorf("ComponentObjects[myapp] = %v, want [{etc/myapp.conf %x}]", entries, confSum)
	}

	wantKernelID := "initramfs (kernel 6.9.1-arch1)"
	if got := prov.ObjectPackage[initramfsSum]; got != wantKernelID {
		t.Errorf("ObjectPackage[initramfs] = %q, want %q", got, wantKernelID)
	}

	var foundKernelGroup, foundUnpackaged bool
	for _, g := range prov.Groups {
		if g.ContentID == wantKernelID {
			foundKernelGroup = true
		}
		if g.ContentID == types.UnpackagedContentID {
			foundUnpackaged = true
		}
	}
	if !foundKernelGroup {
		t.Error("expected a kernel content group")
	}
	if !foundUnpackaged {
		t.Error("expected the unpackaged sentinel content group")
	}

	if prov.Sizes["vim-8.2.x86_64"] <= 0 {
		t.Error("expected a positive size for the vim content group")
	}
}

func TestBuildProvenanceDeterministic(t *testing.T) {
	gw := openEncapsulateTestStore(t)
	rootSum, _, _, _, _ := buildTestTree(t, gw)
	pkgs := testPackages()

	first, err := BuildProvenance(context.Background(), gw, rootSum, pkgs)
	if err != nil {
		t.Fatal(err)
	}
	second, err := BuildProvenance(context.Background(), gw, rootSum, pkgs)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(first.Groups, second.Groups) {
		t.Errorf("Groups differ across runs:\n%v\n%v", first.Groups, second.Groups)
	}
	if !reflect.DeepEqual(first.ObjectPackage, second.ObjectPackage) {
		t.Error("ObjectPackage differs across runs")
	}
	if !reflect.DeepEqual(first.ComponentObjects, second.ComponentObjects) {
		t.Error("ComponentObjects differs across runs")
	}
}

// TestBuildProvenanceMixedComponentAndUnpackagedPath covers a checksum
// deduped across a component-owned path and a plain, non-component path
// that no package provides: the mixed case must still fall into the
// unpackaged-content group rather than being dropped from every group.
func TestBuildProvenanceMixedComponentAndUnpackagedPath(t *testing.T) {
	gw := openEncapsulateTestStore(t)
	ctx := context.Background()
	tx, err := gw.Transaction(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Abort()

	dirMeta := func() types.Checksum { return tx.WriteMetadata(types.DirMeta{Mode: 0o40755}) }

	root := commit.NewMutableTree(dirMeta())
	etc := commit.NewMutableTree(dirMeta())
	root.SetSubtree("etc", etc)
	overlay := commit.NewMutableTree(dirMeta())
	root.SetSubtree("overlay", overlay)

	sharedSum := tx.WriteRegularFile(types.RegularFile{
		Mode:    0o100644,
		Content: []byte("shared-config"),
		Xattrs:  []types.Xattr{{Name: "user.component", Value: []byte("myapp")}},
	})
	etc.SetFile("myapp.conf", sharedSum)
	// Same content, deduped to the same checksum, reached through a
	// second path with no component xattr and no package owner.
	overlay.SetFile("myapp.conf.bak", sharedSum)

	rootSum, err := root.Write(tx)
	if err != nil {
		t.Fatal(err)
	}
	tx.WriteCommit(types.Commit{Root: rootSum, Metadata: types.MetadataDict{}})
	if _, err := tx.Commit("test/mixed"); err != nil {
		t.Fatal(err)
	}

	prov, err := BuildProvenance(ctx, gw, rootSum, nil)
	if err != nil {
		t.Fatalf("BuildProvenance() error = %v", err)
	}

	if got := prov.ObjectPackage[sharedSum]; got != types.UnpackagedContentID {
		t.Errorf("ObjectPackage[sharedSum] = %q, want %q (not dropped)", got, types.UnpackagedContentID)
	}

	var foundPath bool
	for _, pc := range prov.PackageObjects[types.UnpackagedContentID] {
		if pc.Path == "overlay/myapp.conf.bak" && pc.Checksum == sharedSum {
			foundPath = true
		}
	}
	if !foundPath {
		t.Error("expected overlay/myapp.conf.bak in PackageObjects[unpackaged-content]")
	}

	// The component-owned occurrence is still tracked separately.
	entries := prov.ComponentObjects["myapp"]
	if len(entries) != 1 || entries[0].Path != "etc/myapp.conf" || entries[0].Checksum != sharedSum {
		t.Errorf("ComponentObjects[myapp] = %v, want [{etc/myapp.conf %x}]", entries, sharedSum)
	}
}

func TestFindKernelInitramfsAbsent(t *testing.T) {
	gw := openEncapsulateTestStore(t)
	ctx := context.Background()
	tx, err := gw.Transaction(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Abort()

	root := commit.NewMutableTree(tx.WriteMetadata(types.DirMeta{Mode: 0o40755}))
	rootSum, err := root.Write(tx)
	if err != nil {
		t.Fatal(err)
	}
	tx.WriteCommit(types.Commit{Root: rootSum})
	if _, err := tx.Commit("test/empty"); err != nil {
		t.Fatal(err)
	}

	_, _, found, err := findKernelInitramfs(ctx, gw, rootSum)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("expected no kernel directory in an empty tree")
	}
}
