/*
Package rootfs implements the Rootfs Normalizer.

Given a staging directory already populated by the external bootstrap
tool (pacstrap, or pacman -Sy against a chroot), Normalize enforces the
OSTree layout contract the rest of the pipeline depends on:

  - required directories exist (boot, sysroot, var/home, var/roothome,
    sysroot/ostree)
  - forbidden directories are gone (var/log, home, root, usr/local, srv)
  - compatibility symlinks point into /var (home, root, usr/local, srv,
    and the top-level ostree -> sysroot/ostree alias)
  - leftover user.ostreemeta xattrs are stripped, with their embedded
    inner xattr names surfaced as diagnostics via pkg/diag

Special-file filtering (sockets, FIFOs, device nodes) happens later,
during the Commit Generator's tree walk, not here.

Normalize is idempotent: every step either checks current state before
acting (MkdirAll, Readlink-then-replace) or is itself naturally
idempotent (RemoveAll on an already-absent path, Lremovexattr on an
already-stripped xattr).
*/
package rootfs
