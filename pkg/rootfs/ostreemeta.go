package rootfs

import (
	"encoding/binary"

	"golang.org/x/sys/unix"

	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

// ostreeMetaXattr is the xattr name the bootstrap tool leaves behind to
// record the ownership/mode/xattr payload it could not apply directly
// (compose.rs's XATTR_NAME, "user.ostreemeta").
const ostreeMetaXattr = "user.ostreemeta"

// decodedOstreeMeta is the logical shape of a user.ostreemeta payload:
// (uid, gid, mode, xattrs). The wire layout read here is a flat
// uint32-prefixed encoding of that shape, not glib's GVariant framing —
// see DESIGN.md for why a full GVariant decoder was not worth building
// for this one xattr.
type decodedOstreeMeta struct {
	UID    uint32
	GID    uint32
	Mode   uint32
	Xattrs []types.Xattr
}

// readAndStripOstreeMeta looks up user.ostreemeta on path via Lgetxattr,
// decodes it if present, removes it via Lremovexattr, and returns the
// decoded payload (nil if the xattr was absent). The decoded uid/gid/mode
// are intentionally discarded by callers per the component design: the
// normalizer does not re-apply them.
func readAndStripOstreeMeta(path string) (*decodedOstreeMeta, error) {
	size, err := unix.Lgetxattr(path, ostreeMetaXattr, nil)
	if err != nil {
		if err == unix.ENODATA || err == unix.ENOTSUP {
			return nil, nil
		}
		return nil, types.Wrap(types.ErrIO, err, "lgetxattr %s on %s", ostreeMetaXattr, path)
	}
	if size == 0 {
		return nil, nil
	}

	buf := make([]byte, size)
	n, err := unix.Lgetxattr(path, ostreeMetaXattr, buf)
	if err != nil {
		return nil, types.Wrap(types.ErrIO, err, "lgetxattr %s on %s", ostreeMetaXattr, path)
	}

	decoded, err := decodeOstreeMeta(buf[:n])
	if err != nil {
		return nil, types.Wrap(types.ErrEncoding, err, "decode %s on %s", ostreeMetaXattr, path)
	}

	if err := unix.Lremovexattr(path, ostreeMetaXattr); err != nil && err != unix.ENODATA {
		return nil, types.Wrap(types.ErrIO, err, "lremovexattr %s on %s", ostreeMetaXattr, path)
	}

	return decoded, nil
}

func decodeOstreeMeta(raw []byte) (*decodedOstreeMeta, error) {
	if len(raw) < 16 {
		return nil, types.Newf(types.ErrEncoding, "user.ostreemeta payload too short (%d bytes)", len(raw))
	}
	d := &decodedOstreeMeta{
		UID:  binary.LittleEndian.Uint32(raw[0:4]),
		GID:  binary.LittleEndian.Uint32(raw[4:8]),
		Mode: binary.LittleEndian.Uint32(raw[8:12]),
	}
	count := binary.LittleEndian.Uint32(raw[12:16])
	off := 16
	for i := uint32(0); i < count; i++ {
		key, next, err := readLenPrefixed(raw, off)
		if err != nil {
			return nil, err
		}
		off = next
		val, next, err := readLenPrefixed(raw, off)
		if err != nil {
			return nil, err
		}
		off = next
		d.Xattrs = append(d.Xattrs, types.Xattr{Name: string(key), Value: val})
	}
	return d, nil
}

func readLenPrefixed(raw []byte, off int) (value []byte, next int, err error) {
	if off+4 > len(raw) {
		return nil, 0, types.Newf(types.ErrEncoding, "truncated length prefix at offset %d", off)
	}
	n := int(binary.LittleEndian.Uint32(raw[off : off+4]))
	off += 4
	if off+n > len(raw) {
		return nil, 0, types.Newf(types.ErrEncoding, "truncated value at offset %d", off)
	}
	return raw[off : off+n], off + n, nil
}
