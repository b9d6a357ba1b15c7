package layering

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ImmutableArch/pacman-ostree/pkg/commit"
	"github.com/ImmutableArch/pacman-ostree/pkg/store"
	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

// fakeInstaller lets tests exercise Rebuild's layered-install branch
// without a real pacman binary: it just drops a marker file per package.
type fakeInstaller struct {
	installed []string
}

func (f *fakeInstaller) Install(ctx context.Context, root, cacheDir string, packages []string) error {
	f.installed = append(f.installed, packages...)
	for _, p := range packages {
		if err := os.WriteFile(filepath.Join(root, "usr", "bin", p), []byte(p), 0o755); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeInstaller) Remove(ctx context.Context, root, cacheDir string, packages []string) error {
	return nil
}

func newBaseCommit(t *testing.T, gw store.Gateway, ref types.SymbolicRef) {
	t.Helper()
	root := t.TempDir()
	for _, d := range []string{"sysroot", "usr/bin"} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	_, err := commit.GenerateFromRootfs(context.Background(), gw, root, commit.Modifier{}, nil, types.MetadataDict{}, 0, ref, nil)
	if err != nil {
		t.Fatalf("GenerateFromRootfs(base) error = %v", err)
	}
}

func TestInstallFreshWithNoExtraPackages(t *testing.T) {
	ctx := context.Background()
	gw, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer gw.Close()

	newBaseCommit(t, gw, "archlinux/x86_64/base")

	engine := NewEngine(gw, t.TempDir())
	result, err := engine.InstallFresh(ctx, "archlinux/x86_64/base", nil, false)
	if err != nil {
		t.Fatalf("InstallFresh() error = %v", err)
	}
	if result.NewCommit.IsZero() {
		t.Fatal("InstallFresh() returned zero commit")
	}

	resolved, err := gw.Resolve(ctx, "archlinux/layered", false)
	if err != nil {
		t.Fatalf("Resolve(archlinux/layered) error = %v", err)
	}
	if resolved != result.NewCommit {
		t.Errorf("resolved ref = %s, want %s", resolved, result.NewCommit)
	}
}

func TestInstallFreshUnknownBaseFails(t *testing.T) {
	ctx := context.Background()
	gw, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer gw.Close()

	engine := NewEngine(gw, t.TempDir())
	_, err = engine.InstallFresh(ctx, "no/such/base", []string{"vim"}, false)
	if err == nil {
		t.Fatal("expected error for unresolvable base ref")
	}
}

func TestInstallWithFakeInstallerAddsPackage(t *testing.T) {
	ctx := context.Background()
	gw, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer gw.Close()

	newBaseCommit(t, gw, "archlinux/x86_64/base")
	engine := NewEngine(gw, t.TempDir())
	fi := &fakeInstaller{}
	engine.Installer = fi

	fresh, err := engine.InstallFresh(ctx, "archlinux/x86_64/base", nil, false)
	if err != nil {
		t.Fatalf("InstallFresh() error = %v", err)
	}
	_ = fresh

	result, err := engine.Install(ctx, "archlinux/layered", []string{"vim"}, false)
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if len(fi.installed) != 1 || fi.installed[0] != "vim" {
		t.Errorf("installed = %v, want [vim]", fi.installed)
	}

	bootedCommit, err := gw.ReadCommitByChecksum(ctx, result.NewCommit)
	if err != nil {
		t.Fatal(err)
	}
	state := LoadState(bootedCommit, result.NewCommit)
	if len(state.LayeredPackages) != 1 || state.LayeredPackages[0] != "vim" {
		t.Errorf("LayeredPackages = %v, want [vim]", state.LayeredPackages)
	}
}

func TestInstallRejectsEmptyPackageList(t *testing.T) {
	ctx := context.Background()
	gw, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer gw.Close()

	engine := NewEngine(gw, t.TempDir())
	if _, err := engine.Install(ctx, "archlinux/layered", nil, false); err == nil {
		t.Fatal("expected error for empty package list")
	}
}

func TestRemoveRejectsNonLayeredPackage(t *testing.T) {
	ctx := context.Background()
	gw, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer gw.Close()

	newBaseCommit(t, gw, "archlinux/x86_64/base")
	engine := NewEngine(gw, t.TempDir())
	engine.Installer = &fakeInstaller{}

	if _, err := engine.InstallFresh(ctx, "archlinux/x86_64/base", []string{"vim"}, false); err != nil {
		t.Fatalf("InstallFresh() error = %v", err)
	}

	if _, err := engine.Remove(ctx, "archlinux/layered", []string{"bash"}, false); err == nil {
		t.Fatal("expected error removing a non-layered package")
	}
}
