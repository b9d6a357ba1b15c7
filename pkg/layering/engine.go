package layering

import (
	"context"
	"os"
	"path/filepath"

	"github.com/ImmutableArch/pacman-ostree/pkg/commit"
	"github.com/ImmutableArch/pacman-ostree/pkg/diag"
	"github.com/ImmutableArch/pacman-ostree/pkg/metrics"
	"github.com/ImmutableArch/pacman-ostree/pkg/pacman"
	"github.com/ImmutableArch/pacman-ostree/pkg/rootfs"
	"github.com/ImmutableArch/pacman-ostree/pkg/selinux"
	"github.com/ImmutableArch/pacman-ostree/pkg/store"
	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

// PackageInstaller abstracts the pacman install/remove subprocess calls
// so Rebuild is testable without a real pacman binary on PATH. The zero
// value of Engine uses realInstaller, which shells out via pkg/pacman.
type PackageInstaller interface {
	Install(ctx context.Context, root, cacheDir string, packages []string) error
	Remove(ctx context.Context, root, cacheDir string, packages []string) error
}

type realInstaller struct{}

func (realInstaller) Install(ctx context.Context, root, cacheDir string, packages []string) error {
	return pacman.Install(ctx, root, cacheDir, packages)
}

func (realInstaller) Remove(ctx context.Context, root, cacheDir string, packages []string) error {
	return pacman.Remove(ctx, root, cacheDir, packages)
}

// Engine runs the Layered-State Engine's Install/Remove/Rebuild
// algorithms against a store.
type Engine struct {
	Store     store.Gateway
	CacheDir  string
	Installer PackageInstaller
	Broker    *diag.Broker
	Modifier  commit.Modifier
}

// NewEngine builds an Engine with the real pacman-backed installer.
func NewEngine(gw store.Gateway, cacheDir string) *Engine {
	return &Engine{Store: gw, CacheDir: cacheDir, Installer: realInstaller{}}
}

func (e *Engine) installer() PackageInstaller {
	if e.Installer != nil {
		return e.Installer
	}
	return realInstaller{}
}

// Result reports the outcome of Install, InstallFresh, or Remove.
type Result struct {
	NewCommit       types.Checksum
	NewlyInstalled  []string
	DeploymentIndex *int
}

// Install loads the currently booted commit's state, adds packages to
// its layered set (ignoring-with-warning any already present), and
// rebuilds. Fails if none of the requested packages were new.
func (e *Engine) Install(ctx context.Context, bootedRef types.SymbolicRef, packages []string, deployFlag bool) (*Result, error) {
	if len(packages) == 0 {
		return nil, types.Newf(types.ErrInvariantViolation, "Install requires at least one package")
	}

	commitSum, err := e.Store.Resolve(ctx, bootedRef, false)
	if err != nil {
		return nil, err
	}
	bootedCommit, err := e.Store.ReadCommitByChecksum(ctx, commitSum)
	if err != nil {
		return nil, err
	}
	state := LoadState(bootedCommit, commitSum)

	var toAdd []string
	for _, p := range packages {
		if containsPackage(state.LayeredPackages, p) {
			e.Broker.Warnf(diag.WarnPackageAlreadyLayered, "package already layered, ignoring: %s", p)
			continue
		}
		toAdd = append(toAdd, p)
	}
	if len(toAdd) == 0 {
		return nil, types.Newf(types.ErrInvariantViolation, "no new packages to install (all already layered)")
	}

	state.LayeredPackages, _ = addPackages(state.LayeredPackages, toAdd)
	metrics.PackagesInstalledTotal.Add(float64(len(toAdd)))
	return e.rebuild(ctx, state, bootedRef.OSName(), deployFlag)
}

// InstallFresh initializes a layered state from scratch against baseRef
// (verified to resolve) when no booted deployment exists yet.
func (e *Engine) InstallFresh(ctx context.Context, baseRef types.SymbolicRef, packages []string, deployFlag bool) (*Result, error) {
	if _, err := e.Store.Resolve(ctx, baseRef, false); err != nil {
		return nil, err
	}

	state := &types.LayeredState{BaseRef: baseRef}
	state.LayeredPackages, _ = addPackages(nil, packages)

	return e.rebuild(ctx, state, baseRef.OSName(), deployFlag)
}

// Remove loads the currently booted commit's state and drops packages
// from its layered set. Removing a base (non-layered) package is
// rejected per-package, naming the offending package.
func (e *Engine) Remove(ctx context.Context, bootedRef types.SymbolicRef, packages []string, deployFlag bool) (*Result, error) {
	if len(packages) == 0 {
		return nil, types.Newf(types.ErrInvariantViolation, "Remove requires at least one package")
	}

	commitSum, err := e.Store.Resolve(ctx, bootedRef, false)
	if err != nil {
		return nil, err
	}
	bootedCommit, err := e.Store.ReadCommitByChecksum(ctx, commitSum)
	if err != nil {
		return nil, err
	}
	state := LoadState(bootedCommit, commitSum)

	for _, p := range packages {
		if !containsPackage(state.LayeredPackages, p) {
			return nil, types.Newf(types.ErrInvariantViolation, "not a layered package (base packages cannot be removed): %s", p)
		}
	}
	state.LayeredPackages = removePackages(state.LayeredPackages, packages)
	metrics.PackagesRemovedTotal.Add(float64(len(packages)))

	return e.rebuild(ctx, state, bootedRef.OSName(), deployFlag)
}

// rebuild implements the from-scratch Rebuild algorithm: checkout the
// base, reinstall every layered package into a fresh staging directory,
// run the Commit Generator over it, move the target ref, and optionally
// deploy. It never applies a diff against the previous commit.
func (e *Engine) rebuild(ctx context.Context, state *types.LayeredState, osName string, deployFlag bool) (*Result, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RebuildDuration)

	baseDB, err := e.readBasePackageDatabase(ctx, state.BaseRef)
	if err != nil {
		return nil, err
	}

	stagingRoot, err := os.MkdirTemp("", "pacman-ostree-rebuild-")
	if err != nil {
		return nil, types.Wrap(types.ErrIO, err, "create staging directory")
	}
	defer os.RemoveAll(stagingRoot)

	if err := commit.Checkout(ctx, e.Store, state.BaseRef, stagingRoot); err != nil {
		return nil, err
	}

	if len(state.LayeredPackages) > 0 {
		if err := e.installer().Install(ctx, stagingRoot, e.CacheDir, state.LayeredPackages); err != nil {
			return nil, err
		}
		if err := mergeEtcIntoUsrEtc(stagingRoot); err != nil {
			return nil, err
		}
	}

	if _, err := rootfs.Normalize(stagingRoot, e.Broker); err != nil {
		return nil, err
	}

	newlyInstalled := newlyInstalledPackages(state.LayeredPackages, baseDB)

	policy, err := selinux.Load(filepath.Join(stagingRoot, "usr/etc/selinux/default/contexts/files/file_contexts"))
	if err != nil {
		return nil, err
	}

	ref := types.SymbolicRef(osName + "/layered")
	newCommit, err := commit.GenerateFromRootfs(ctx, e.Store, stagingRoot, e.Modifier, policy, EncodeMetadata(state), 0, ref, e.Broker)
	if err != nil {
		return nil, err
	}

	result := &Result{NewCommit: newCommit, NewlyInstalled: newlyInstalled}

	if deployFlag {
		slot, err := Deploy(ctx, osName, newCommit)
		if err != nil {
			return nil, err
		}
		result.DeploymentIndex = &slot
	}

	return result, nil
}

func (e *Engine) readBasePackageDatabase(ctx context.Context, baseRef types.SymbolicRef) ([]types.PackageMeta, error) {
	tmp, err := os.MkdirTemp("", "pacman-ostree-basedb-")
	if err != nil {
		return nil, types.Wrap(types.ErrIO, err, "create base-db checkout directory")
	}
	defer os.RemoveAll(tmp)

	if err := commit.Checkout(ctx, e.Store, baseRef, tmp); err != nil {
		return nil, err
	}
	return pacman.ReadPackageDatabase(tmp)
}

func newlyInstalledPackages(layered []string, baseDB []types.PackageMeta) []string {
	inBase := make(map[string]struct{}, len(baseDB))
	for _, p := range baseDB {
		inBase[p.Name] = struct{}{}
	}
	var out []string
	for _, p := range layered {
		if _, ok := inBase[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}

// mergeEtcIntoUsrEtc folds any /etc tree a package installer recreated
// (package managers are relocation-unaware) back into /usr/etc, then
// removes /etc, restoring the invariant the Commit Generator's own
// relocation step expects to find already satisfied.
func mergeEtcIntoUsrEtc(root string) error {
	etcDir := filepath.Join(root, "etc")
	if _, err := os.Lstat(etcDir); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return types.Wrap(types.ErrIO, err, "stat %s", etcDir)
	}

	usrEtcDir := filepath.Join(root, "usr", "etc")
	if err := os.MkdirAll(usrEtcDir, 0o755); err != nil {
		return types.Wrap(types.ErrIO, err, "create %s", usrEtcDir)
	}

	entries, err := os.ReadDir(etcDir)
	if err != nil {
		return types.Wrap(types.ErrIO, err, "read %s", etcDir)
	}
	for _, e := range entries {
		src := filepath.Join(etcDir, e.Name())
		dst := filepath.Join(usrEtcDir, e.Name())
		if err := os.RemoveAll(dst); err != nil {
			return types.Wrap(types.ErrIO, err, "remove existing %s", dst)
		}
		if err := os.Rename(src, dst); err != nil {
			return types.Wrap(types.ErrIO, err, "move %s to %s", src, dst)
		}
	}
	return os.RemoveAll(etcDir)
}
