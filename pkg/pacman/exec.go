package pacman

import (
	"bytes"
	"context"
	"os/exec"
	"syscall"

	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

// Install shells out to pacman to install packages into root, using
// cacheDir as the package cache. Grounded directly on
// pacman_manager.rs::install.
func Install(ctx context.Context, root, cacheDir string, packages []string) error {
	args := append([]string{"-Sy", "-r", root, "--cachedir=" + cacheDir, "--noconfirm"}, packages...)
	return run(ctx, "pacman", args...)
}

// Remove shells out to pacman to remove packages from root. Grounded
// directly on pacman_manager.rs::remove.
func Remove(ctx context.Context, root, cacheDir string, packages []string) error {
	args := append([]string{"-Rns", "-r", root, "--cachedir=" + cacheDir, "--noconfirm"}, packages...)
	return run(ctx, "pacman", args...)
}

// PacstrapInstall bootstraps a fresh root with packages via pacstrap.
// Requires root privileges, matching pacman_manager.rs::pacstrap_install.
func PacstrapInstall(ctx context.Context, root string, packages []string) error {
	if syscall.Geteuid() != 0 {
		return types.Newf(types.ErrConfiguration, "pacstrap_install requires root privileges (EUID != 0)")
	}
	args := append([]string{"-c", root, "--noconfirm"}, packages...)
	return run(ctx, "pacstrap", args...)
}

// run executes name with args, capturing stdout and stderr verbatim so
// that a non-zero exit can report both streams per the subprocess-failed
// error kind.
func run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return types.Wrap(types.ErrSubprocessFailed, err,
			"%s %v failed\nstdout:\n%s\nstderr:\n%s", name, args, stdout.String(), stderr.String())
	}
	return nil
}
