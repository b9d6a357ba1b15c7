// Package commit implements the Commit Generator: the forward path that
// walks a normalized rootfs into an immutable commit, and the reverse
// path that checks a commit back out to a flat directory via an archive
// pipe bridge. Grounded on original_source's compose.rs::commit (forward)
// and container.rs's archive round-trip (reverse), translated from
// libostree's mutable-tree API into this repository's store.Transaction
// and MutableTree.
package commit

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/ImmutableArch/pacman-ostree/pkg/diag"
	"github.com/ImmutableArch/pacman-ostree/pkg/metrics"
	"github.com/ImmutableArch/pacman-ostree/pkg/selinux"
	"github.com/ImmutableArch/pacman-ostree/pkg/store"
	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

const modeDir = uint32(syscall.S_IFDIR)

// GenerateFromRootfs implements §4.3.1: it walks the normalized rootfs
// at root, writes every object into a fresh transaction on gw, applies
// the /etc<->/usr/etc relocation, writes a commit with the given
// metadata and creation time, and commits the transaction to ref (empty
// ref means "write the commit but move no ref", used by callers who
// move a ref themselves after composing further changes).
//
// If any step after the transaction opens fails, the transaction is
// aborted and no new objects become reachable.
func GenerateFromRootfs(
	ctx context.Context,
	gw store.Gateway,
	root string,
	mod Modifier,
	policy *selinux.Policy,
	metadata types.MetadataDict,
	creationTime int64,
	ref types.SymbolicRef,
	broker *diag.Broker,
) (resultSum types.Checksum, resultErr error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.CommitGenerateDuration)
		outcome := "ok"
		if resultErr != nil {
			outcome = "error"
		}
		metrics.CommitsGeneratedTotal.WithLabelValues(outcome).Inc()
	}()

	tx, err := gw.Transaction(ctx)
	if err != nil {
		return types.Checksum{}, err
	}
	defer tx.Abort()

	rootTree, err := buildRootTree(tx, root, mod, policy, broker)
	if err != nil {
		return types.Checksum{}, err
	}

	if err := relocateEtc(tx, rootTree); err != nil {
		return types.Checksum{}, err
	}

	rootSum, err := rootTree.Write(tx)
	if err != nil {
		return types.Checksum{}, err
	}

	if creationTime < 0 {
		return types.Checksum{}, types.Newf(types.ErrConfiguration, "commit time must not be negative, got %d", creationTime)
	}
	c := types.Commit{
		Root:     rootSum,
		Metadata: metadata,
	}
	if creationTime > 0 {
		c.Time = time.Unix(creationTime, 0).UTC()
	}
	tx.WriteCommit(c)

	return tx.Commit(ref)
}

// buildRootTree implements step 2-4 of §4.3.1: build the root directory
// metadata object, then handle each top-level entry per its special
// casing (sysroot not descended, directories recursed, symlinks labeled
// and written directly, regular files rejected, and any other special
// file skipped with a warning).
func buildRootTree(tx *store.Transaction, root string, mod Modifier, policy *selinux.Policy, broker *diag.Broker) (*MutableTree, error) {
	fi, err := os.Lstat(root)
	if err != nil {
		return nil, types.Wrap(types.ErrIO, err, "stat root %s", root)
	}
	uid, gid := statOwner(fi)
	uid, gid = mod.applyOwner(uid, gid)

	xattrs, err := readXattrs(root)
	if err != nil {
		return nil, err
	}
	if mod.SkipXattrs {
		xattrs = nil
	}
	if ctx, ok := policy.Label("/", selinux.ClassDirectory); ok {
		xattrs = withSELinuxLabel(xattrs, selinux.Xattr(ctx))
	}

	metaSum := tx.WriteMetadata(types.DirMeta{
		Mode:   modeDir | mod.applyDirMode(uint32(fi.Mode().Perm())),
		UID:    uid,
		GID:    gid,
		Xattrs: xattrs,
	})

	rootTree := NewMutableTree(metaSum)

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, types.Wrap(types.ErrIO, err, "read root %s", root)
	}

	for _, e := range entries {
		name := e.Name()
		absPath := filepath.Join(root, name)
		virtualPath := "/" + name

		info, err := os.Lstat(absPath)
		if err != nil {
			return nil, types.Wrap(types.ErrIO, err, "stat %s", absPath)
		}

		switch {
		case name == "sysroot" && info.IsDir():
			rootTree.SetSubtree(name, NewMutableTree(metaSum))

		case info.IsDir():
			sub, err := writeDirRecursive(tx, absPath, virtualPath, mod, policy, broker)
			if err != nil {
				return nil, err
			}
			rootTree.SetSubtree(name, sub)

		case info.Mode()&os.ModeSymlink != 0:
			sum, err := writeSymlink(tx, absPath, virtualPath, 0, 0, mod, policy, broker)
			if err != nil {
				return nil, err
			}
			rootTree.SetFile(name, sum)

		case info.Mode().IsRegular():
			return nil, types.Newf(types.ErrInvariantViolation, "unsupported special file at toplevel: %s", name)

		default:
			metrics.SpecialFilesSkippedTotal.Inc()
			if broker != nil {
				broker.Warnf(diag.WarnSpecialFileSkipped, "special file skipped: %s", virtualPath)
			}
		}
	}

	return rootTree, nil
}

// writeDirRecursive streams one directory's contents into a fresh
// MutableTree, applying the commit modifier to every descendant and
// SELinux labels to directories and symlinks; regular files are not
// labelled.
func writeDirRecursive(tx *store.Transaction, absPath, virtualPath string, mod Modifier, policy *selinux.Policy, broker *diag.Broker) (*MutableTree, error) {
	fi, err := os.Lstat(absPath)
	if err != nil {
		return nil, types.Wrap(types.ErrIO, err, "stat %s", absPath)
	}
	uid, gid := statOwner(fi)
	uid, gid = mod.applyOwner(uid, gid)

	xattrs, err := readXattrs(absPath)
	if err != nil {
		return nil, err
	}
	if mod.SkipXattrs {
		xattrs = nil
	}
	if ctx, ok := policy.Label(virtualPath, selinux.ClassDirectory); ok {
		xattrs = withSELinuxLabel(xattrs, selinux.Xattr(ctx))
	}

	metaSum := tx.WriteMetadata(types.DirMeta{
		Mode:   modeDir | mod.applyDirMode(uint32(fi.Mode().Perm())),
		UID:    uid,
		GID:    gid,
		Xattrs: xattrs,
	})
	tree := NewMutableTree(metaSum)

	entries, err := os.ReadDir(absPath)
	if err != nil {
		return nil, types.Wrap(types.ErrIO, err, "read dir %s", absPath)
	}

	for _, e := range entries {
		name := e.Name()
		childAbs := filepath.Join(absPath, name)
		childVirtual := virtualPath + "/" + name

		info, err := os.Lstat(childAbs)
		if err != nil {
			return nil, types.Wrap(types.ErrIO, err, "stat %s", childAbs)
		}

		switch {
		case info.IsDir():
			sub, err := writeDirRecursive(tx, childAbs, childVirtual, mod, policy, broker)
			if err != nil {
				return nil, err
			}
			tree.SetSubtree(name, sub)

		case info.Mode()&os.ModeSymlink != 0:
			cuid, cgid := statOwner(info)
			cuid, cgid = mod.applyOwner(cuid, cgid)
			sum, err := writeSymlink(tx, childAbs, childVirtual, cuid, cgid, mod, policy, broker)
			if err != nil {
				return nil, err
			}
			tree.SetFile(name, sum)

		case info.Mode().IsRegular():
			sum, err := writeRegularFile(tx, childAbs, childVirtual, info, mod, policy)
			if err != nil {
				return nil, err
			}
			tree.SetFile(name, sum)

		default:
			metrics.SpecialFilesSkippedTotal.Inc()
			if broker != nil {
				broker.Warnf(diag.WarnSpecialFileSkipped, "special file skipped: %s", childVirtual)
			}
		}
	}

	return tree, nil
}

func writeRegularFile(tx *store.Transaction, absPath, virtualPath string, info os.FileInfo, mod Modifier, policy *selinux.Policy) (types.Checksum, error) {
	content, err := os.ReadFile(absPath)
	if err != nil {
		return types.Checksum{}, types.Wrap(types.ErrIO, err, "read %s", absPath)
	}
	uid, gid := statOwner(info)
	uid, gid = mod.applyOwner(uid, gid)

	xattrs, err := readXattrs(absPath)
	if err != nil {
		return types.Checksum{}, err
	}
	if mod.SkipXattrs {
		xattrs = nil
	}

	return tx.WriteRegularFile(types.RegularFile{
		Mode:    mod.applyFileMode(uint32(info.Mode().Perm())),
		UID:     uid,
		GID:     gid,
		Xattrs:  xattrs,
		Content: content,
	}), nil
}

func writeSymlink(tx *store.Transaction, absPath, virtualPath string, uid, gid uint32, mod Modifier, policy *selinux.Policy, broker *diag.Broker) (types.Checksum, error) {
	target, err := os.Readlink(absPath)
	if err != nil {
		return types.Checksum{}, types.Wrap(types.ErrIO, err, "readlink %s", absPath)
	}
	if !utf8.ValidString(target) {
		return types.Checksum{}, types.Newf(types.ErrEncoding, "symlink target at %s is not valid UTF-8", virtualPath)
	}

	var xattrs []types.Xattr
	if !mod.SkipXattrs {
		xattrs, err = readXattrs(absPath)
		if err != nil {
			return types.Checksum{}, err
		}
	}
	if ctx, ok := policy.Label(virtualPath, selinux.ClassSymlink); ok {
		xattrs = withSELinuxLabel(xattrs, selinux.Xattr(ctx))
	}

	return tx.WriteSymlink(types.Symlink{
		UID:    uid,
		GID:    gid,
		Xattrs: xattrs,
		Target: target,
	}), nil
}

func statOwner(fi os.FileInfo) (uid, gid uint32) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0
	}
	return st.Uid, st.Gid
}
