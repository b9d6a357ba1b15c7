package commit

import (
	"sort"

	"golang.org/x/sys/unix"

	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

// readXattrs captures every extended attribute present on path (which
// may be a directory, regular file, or symlink — Llistxattr/Lgetxattr do
// not follow symlinks) and returns them sorted by name, matching the
// store's canonical-encoding ordering requirement.
func readXattrs(path string) ([]types.Xattr, error) {
	size, err := unix.Llistxattr(path, nil)
	if err != nil {
		if err == unix.ENOTSUP {
			return nil, nil
		}
		return nil, types.Wrap(types.ErrIO, err, "llistxattr %s", path)
	}
	if size == 0 {
		return nil, nil
	}

	namesBuf := make([]byte, size)
	n, err := unix.Llistxattr(path, namesBuf)
	if err != nil {
		return nil, types.Wrap(types.ErrIO, err, "llistxattr %s", path)
	}

	var out []types.Xattr
	for _, name := range splitNulTerminated(namesBuf[:n]) {
		valSize, err := unix.Lgetxattr(path, name, nil)
		if err != nil {
			if err == unix.ENODATA {
				continue
			}
			return nil, types.Wrap(types.ErrIO, err, "lgetxattr %s on %s", name, path)
		}
		val := make([]byte, valSize)
		if valSize > 0 {
			vn, err := unix.Lgetxattr(path, name, val)
			if err != nil {
				return nil, types.Wrap(types.ErrIO, err, "lgetxattr %s on %s", name, path)
			}
			val = val[:vn]
		}
		out = append(out, types.Xattr{Name: name, Value: val})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func splitNulTerminated(buf []byte) []string {
	var names []string
	start := 0
	for i, b := range buf {
		if b == 0 {
			if i > start {
				names = append(names, string(buf[start:i]))
			}
			start = i + 1
		}
	}
	return names
}

// withSELinuxLabel appends the security.selinux xattr for context to
// xattrs, replacing any existing entry of that name, keeping the result
// sorted.
func withSELinuxLabel(xattrs []types.Xattr, x types.Xattr) []types.Xattr {
	out := make([]types.Xattr, 0, len(xattrs)+1)
	for _, existing := range xattrs {
		if existing.Name == x.Name {
			continue
		}
		out = append(out, existing)
	}
	out = append(out, x)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
