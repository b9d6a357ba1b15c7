// Post-install chroot actions: regenerating the initramfs with ostree
// support, enabling systemd services, and running post-install
// scripts inside the staging root. All three are external-process
// invocations per the component design's external interfaces (§6);
// none of this logic is reimplemented in-process. Grounded on
// original_source's compose.rs (setup_rootfs_services,
// execute_scripts_in_rootfs, rebuild_initramfs).
package layering

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

// detectKernelVersion scans root/usr/lib/modules for kernel-version
// directories and returns the lexicographically last one, matching
// original_source's "find ... | tail -n 1" heuristic.
func detectKernelVersion(root string) (string, error) {
	modulesDir := filepath.Join(root, "usr/lib/modules")
	entries, err := os.ReadDir(modulesDir)
	if err != nil {
		return "", types.Wrap(types.ErrIO, err, "read %s", modulesDir)
	}

	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	if len(versions) == 0 {
		return "", types.Newf(types.ErrConfiguration, "no kernel version directory found under %s", modulesDir)
	}
	sort.Strings(versions)
	return versions[len(versions)-1], nil
}

// RebuildInitramfs regenerates root's initramfs image with ostree
// support via dracut, for the kernel version found under
// usr/lib/modules. Returns the path to the rebuilt image.
func RebuildInitramfs(ctx context.Context, root string) (string, error) {
	kernelVersion, err := detectKernelVersion(root)
	if err != nil {
		return "", err
	}

	initramfsPath := filepath.Join(root, "usr/lib/modules", kernelVersion, "initramfs.img")

	args := []string{
		"--force",
		"-r", root,
		"--no-hostonly",
		"--zstd",
		"--reproducible",
		"--kver", kernelVersion,
		"--add", "ostree",
		initramfsPath,
	}
	if err := runChrootTool(ctx, "dracut", args...); err != nil {
		return "", err
	}
	return initramfsPath, nil
}

// EnableServices enables each named systemd unit inside root via
// arch-chroot. A single failing unit is reported but does not abort
// the remaining enables, matching original_source's best-effort loop.
func EnableServices(ctx context.Context, root string, services []string) error {
	var firstErr error
	for _, svc := range services {
		args := []string{root, "systemctl", "enable", svc}
		if err := runChrootTool(ctx, "arch-chroot", args...); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RunPostInstallScripts executes each script's contents as a bash
// script inside root via arch-chroot, fed over stdin. A single
// failing script is reported but does not abort the remaining
// scripts, matching original_source's best-effort loop.
func RunPostInstallScripts(ctx context.Context, root string, scriptPaths []string) error {
	var firstErr error
	for _, path := range scriptPaths {
		f, err := os.Open(path)
		if err != nil {
			if firstErr == nil {
				firstErr = types.Wrap(types.ErrIO, err, "open post-install script %s", path)
			}
			continue
		}
		err = runChrootToolStdin(ctx, f, "arch-chroot", root, "/bin/bash", "-s")
		f.Close()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func runChrootTool(ctx context.Context, name string, args ...string) error {
	return runChrootToolStdin(ctx, nil, name, args...)
}

func runChrootToolStdin(ctx context.Context, stdin *os.File, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = stdin
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return types.Wrap(types.ErrSubprocessFailed, err,
			"%s %v failed\nstdout:\n%s\nstderr:\n%s", name, args, stdout.String(), stderr.String())
	}
	return nil
}
