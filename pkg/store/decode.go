package store

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

func timeFromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

type byteReader struct {
	r *bytes.Reader
}

func (b *byteReader) uvarint() (uint64, error) {
	return binary.ReadUvarint(b.r)
}

func (b *byteReader) string() (string, error) {
	n, err := b.uvarint()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(b.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func (b *byteReader) bytes() ([]byte, error) {
	n, err := b.uvarint()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(b.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (b *byteReader) xattrs() ([]types.Xattr, error) {
	n, err := b.uvarint()
	if err != nil {
		return nil, err
	}
	out := make([]types.Xattr, 0, n)
	for i := uint64(0); i < n; i++ {
		name, err := b.string()
		if err != nil {
			return nil, err
		}
		val, err := b.bytes()
		if err != nil {
			return nil, err
		}
		out = append(out, types.Xattr{Name: name, Value: val})
	}
	return out, nil
}

func newByteReader(raw []byte) (*byteReader, error) {
	if len(raw) == 0 {
		return nil, types.Newf(types.ErrEncoding, "empty object payload")
	}
	return &byteReader{r: bytes.NewReader(raw[1:])}, nil
}

func decodeRegularFile(raw []byte) (*types.RegularFile, error) {
	if len(raw) == 0 || raw[0] != tagRegularFile {
		return nil, types.Newf(types.ErrEncoding, "not a regular-file object")
	}
	r, err := newByteReader(raw)
	if err != nil {
		return nil, err
	}
	mode, err := r.uvarint()
	if err != nil {
		return nil, types.Wrap(types.ErrEncoding, err, "decode regular-file mode")
	}
	uid, err := r.uvarint()
	if err != nil {
		return nil, types.Wrap(types.ErrEncoding, err, "decode regular-file uid")
	}
	gid, err := r.uvarint()
	if err != nil {
		return nil, types.Wrap(types.ErrEncoding, err, "decode regular-file gid")
	}
	xattrs, err := r.xattrs()
	if err != nil {
		return nil, types.Wrap(types.ErrEncoding, err, "decode regular-file xattrs")
	}
	content, err := r.bytes()
	if err != nil {
		return nil, types.Wrap(types.ErrEncoding, err, "decode regular-file content")
	}
	return &types.RegularFile{Mode: uint32(mode), UID: uint32(uid), GID: uint32(gid), Xattrs: xattrs, Content: content}, nil
}

func decodeSymlink(raw []byte) (*types.Symlink, error) {
	if len(raw) == 0 || raw[0] != tagSymlink {
		return nil, types.Newf(types.ErrEncoding, "not a symlink object")
	}
	r, err := newByteReader(raw)
	if err != nil {
		return nil, err
	}
	uid, err := r.uvarint()
	if err != nil {
		return nil, types.Wrap(types.ErrEncoding, err, "decode symlink uid")
	}
	gid, err := r.uvarint()
	if err != nil {
		return nil, types.Wrap(types.ErrEncoding, err, "decode symlink gid")
	}
	xattrs, err := r.xattrs()
	if err != nil {
		return nil, types.Wrap(types.ErrEncoding, err, "decode symlink xattrs")
	}
	target, err := r.string()
	if err != nil {
		return nil, types.Wrap(types.ErrEncoding, err, "decode symlink target")
	}
	return &types.Symlink{UID: uint32(uid), GID: uint32(gid), Xattrs: xattrs, Target: target}, nil
}

func decodeDirMeta(raw []byte) (*types.DirMeta, error) {
	if len(raw) == 0 || raw[0] != tagDirMeta {
		return nil, types.Newf(types.ErrEncoding, "not a dirmeta object")
	}
	r, err := newByteReader(raw)
	if err != nil {
		return nil, err
	}
	mode, err := r.uvarint()
	if err != nil {
		return nil, types.Wrap(types.ErrEncoding, err, "decode dirmeta mode")
	}
	uid, err := r.uvarint()
	if err != nil {
		return nil, types.Wrap(types.ErrEncoding, err, "decode dirmeta uid")
	}
	gid, err := r.uvarint()
	if err != nil {
		return nil, types.Wrap(types.ErrEncoding, err, "decode dirmeta gid")
	}
	xattrs, err := r.xattrs()
	if err != nil {
		return nil, types.Wrap(types.ErrEncoding, err, "decode dirmeta xattrs")
	}
	return &types.DirMeta{Mode: uint32(mode), UID: uint32(uid), GID: uint32(gid), Xattrs: xattrs}, nil
}

func decodeDirTree(raw []byte) (*types.DirTree, error) {
	if len(raw) == 0 || raw[0] != tagDirTree {
		return nil, types.Newf(types.ErrEncoding, "not a dirtree object")
	}
	body := raw[1:]
	if len(body) < 32 {
		return nil, types.Newf(types.ErrEncoding, "truncated dirtree object")
	}
	var tree types.DirTree
	copy(tree.MetaChecksum[:], body[:32])

	r := &byteReader{r: bytes.NewReader(body[32:])}
	n, err := r.uvarint()
	if err != nil {
		return nil, types.Wrap(types.ErrEncoding, err, "decode dirtree entry count")
	}
	tree.Entries = make([]types.DirEntry, 0, n)
	for i := uint64(0); i < n; i++ {
		name, err := r.string()
		if err != nil {
			return nil, types.Wrap(types.ErrEncoding, err, "decode dirtree entry name")
		}
		isDirByte, err := r.r.ReadByte()
		if err != nil {
			return nil, types.Wrap(types.ErrEncoding, err, "decode dirtree entry kind")
		}
		var sum types.Checksum
		if _, err := io.ReadFull(r.r, sum[:]); err != nil {
			return nil, types.Wrap(types.ErrEncoding, err, "decode dirtree entry checksum")
		}
		tree.Entries = append(tree.Entries, types.DirEntry{Name: name, IsDir: isDirByte == 1, Checksum: sum})
	}
	return &tree, nil
}
