// Package rootfs implements the Rootfs Normalizer: it takes a staging
// directory already populated by the external bootstrap tool and enforces
// the layout contract the Commit Generator and Layered-State Engine
// depend on (required directories present, forbidden directories gone,
// compatibility symlinks in place, user.ostreemeta xattrs stripped).
//
// Grounded on original_source's compose.rs::install_filesystem and
// strip_usermeta, translated from direct libostree calls into plain
// os + golang.org/x/sys/unix xattr syscalls.
package rootfs

import (
	"os"
	"path/filepath"

	"github.com/ImmutableArch/pacman-ostree/pkg/diag"
	"github.com/ImmutableArch/pacman-ostree/pkg/log"
	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

// requiredDirs are created (recursively, mode 0755) if missing.
var requiredDirs = []string{
	"boot",
	"sysroot",
	"var/home",
	"var/roothome",
	"sysroot/ostree",
}

// forbiddenDirs are removed recursively if present.
var forbiddenDirs = []string{
	"var/log",
	"home",
	"root",
	"usr/local",
	"srv",
}

// compatSymlink is one top-level (or near-top-level) compatibility
// symlink: Path is relative to the rootfs root, Target is the relative
// link target compose.rs installs.
type compatSymlink struct {
	Path   string
	Target string
}

var compatSymlinks = []compatSymlink{
	{Path: "home", Target: "var/home"},
	{Path: "root", Target: "var/roothome"},
	{Path: "usr/local", Target: "var/usrlocal"},
	{Path: "srv", Target: "var/srv"},
	{Path: "ostree", Target: "sysroot/ostree"},
}

// XattrRemovalInfo accumulates diagnostics about user.ostreemeta xattrs
// found and stripped during normalization, mirroring compose.rs's
// XattrRemovalInfo: the set of inner xattr key names observed, and how
// many files/symlinks carried the attribute.
type XattrRemovalInfo struct {
	Names map[string]struct{}
	Count uint64
}

func newXattrRemovalInfo() *XattrRemovalInfo {
	return &XattrRemovalInfo{Names: map[string]struct{}{}}
}

// Normalize applies steps 1-4 of the rootfs contract to root, in order.
// It is idempotent: a second call on an already-normalized tree makes no
// further changes. Step 5 (special-file filtering) happens during the
// Commit Generator's walk, not here, per the component design.
func Normalize(root string, broker *diag.Broker) (*XattrRemovalInfo, error) {
	if err := ensureRequiredDirs(root); err != nil {
		return nil, err
	}
	if err := removeForbiddenDirs(root); err != nil {
		return nil, err
	}
	if err := installCompatSymlinks(root); err != nil {
		return nil, err
	}
	info, err := stripOstreeMeta(root, broker)
	if err != nil {
		return nil, err
	}
	return info, nil
}

func ensureRequiredDirs(root string) error {
	for _, rel := range requiredDirs {
		full := filepath.Join(root, rel)
		if err := os.MkdirAll(full, 0o755); err != nil {
			return types.Wrap(types.ErrIO, err, "create required directory %s", rel)
		}
	}
	return nil
}

func removeForbiddenDirs(root string) error {
	for _, rel := range forbiddenDirs {
		full := filepath.Join(root, rel)
		if _, err := os.Lstat(full); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return types.Wrap(types.ErrIO, err, "stat forbidden directory %s", rel)
		}
		if err := os.RemoveAll(full); err != nil {
			return types.Wrap(types.ErrIO, err, "remove forbidden directory %s", rel)
		}
	}
	return nil
}

func installCompatSymlinks(root string) error {
	for _, sl := range compatSymlinks {
		full := filepath.Join(root, sl.Path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return types.Wrap(types.ErrIO, err, "create parent of symlink %s", sl.Path)
		}

		existing, err := os.Readlink(full)
		if err == nil && existing == sl.Target {
			continue // already correct, idempotent no-op
		}
		if err == nil || !os.IsNotExist(err) {
			// Either a symlink with the wrong target, or some other
			// entry occupying the path: replace it.
			if rmErr := os.RemoveAll(full); rmErr != nil {
				return types.Wrap(types.ErrIO, rmErr, "replace existing entry at %s", sl.Path)
			}
		}
		if err := os.Symlink(sl.Target, full); err != nil {
			return types.Wrap(types.ErrIO, err, "create compatibility symlink %s -> %s", sl.Path, sl.Target)
		}
	}
	return nil
}

func stripOstreeMeta(root string, broker *diag.Broker) (*XattrRemovalInfo, error) {
	info := newXattrRemovalInfo()

	err := filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return types.Wrap(types.ErrIO, err, "walk %s", path)
		}
		if fi.IsDir() {
			return nil
		}
		decoded, err := readAndStripOstreeMeta(path)
		if err != nil {
			return err
		}
		if decoded == nil {
			return nil
		}
		info.Count++
		for _, x := range decoded.Xattrs {
			info.Names[x.Name] = struct{}{}
		}
		if broker != nil {
			broker.Warnf(diag.WarnLeftoverXattr, "leftover user.ostreemeta xattr stripped from %s", path)
		}
		log.Logger.Debug().Str("path", path).Int("xattr_count", len(decoded.Xattrs)).Msg("stripped user.ostreemeta")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}
