package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

func sha256Sum(raw []byte) [32]byte {
	return sha256.Sum256(raw)
}

// encodeCommitForHashing produces a deterministic byte form of a commit
// used solely to derive its checksum; the persisted record (commitRecord
// in boltdb.go) is JSON and carries the same fields.
func encodeCommitForHashing(c types.Commit) []byte {
	var buf bytes.Buffer
	buf.WriteByte(5) // tagCommit, kept private to this file
	buf.Write(c.Parent[:])
	buf.Write(c.Root[:])
	var unixTime uint64
	if !c.Time.IsZero() {
		unixTime = uint64(c.Time.Unix())
	}
	putUvarint(&buf, unixTime)

	keys := make([]string, 0, len(c.Metadata))
	for k := range c.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	putUvarint(&buf, uint64(len(keys)))
	for _, k := range keys {
		putString(&buf, k)
		v := c.Metadata[k]
		if v.IsInt {
			buf.WriteByte(1)
			putUvarint(&buf, v.UInt)
		} else {
			buf.WriteByte(0)
			putString(&buf, v.Str)
		}
	}
	return buf.Bytes()
}

// Canonical encodings for the four object kinds. A checksum is always
// sha256 of exactly this byte sequence, so identical logical content
// always produces identical checksums regardless of xattr insertion
// order or map iteration order — xattrs are sorted by key before
// encoding, and DirTree entries are sorted by name.

const (
	tagRegularFile byte = 1
	tagSymlink     byte = 2
	tagDirMeta     byte = 3
	tagDirTree     byte = 4
)

func sortedXattrs(xattrs []types.Xattr) []types.Xattr {
	out := make([]types.Xattr, len(xattrs))
	copy(out, xattrs)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func putUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func putString(buf *bytes.Buffer, s string) {
	putUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func putBytes(buf *bytes.Buffer, b []byte) {
	putUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func putXattrs(buf *bytes.Buffer, xattrs []types.Xattr) {
	sorted := sortedXattrs(xattrs)
	putUvarint(buf, uint64(len(sorted)))
	for _, x := range sorted {
		putString(buf, x.Name)
		putBytes(buf, x.Value)
	}
}

// EncodeRegularFile produces the canonical byte form of a RegularFile.
func EncodeRegularFile(f types.RegularFile) []byte {
	var buf bytes.Buffer
	buf.WriteByte(tagRegularFile)
	putUvarint(&buf, uint64(f.Mode))
	putUvarint(&buf, uint64(f.UID))
	putUvarint(&buf, uint64(f.GID))
	putXattrs(&buf, f.Xattrs)
	putBytes(&buf, f.Content)
	return buf.Bytes()
}

// EncodeSymlink produces the canonical byte form of a Symlink.
func EncodeSymlink(s types.Symlink) []byte {
	var buf bytes.Buffer
	buf.WriteByte(tagSymlink)
	putUvarint(&buf, uint64(s.UID))
	putUvarint(&buf, uint64(s.GID))
	putXattrs(&buf, s.Xattrs)
	putString(&buf, s.Target)
	return buf.Bytes()
}

// EncodeDirMeta produces the canonical byte form of a DirMeta.
func EncodeDirMeta(m types.DirMeta) []byte {
	var buf bytes.Buffer
	buf.WriteByte(tagDirMeta)
	putUvarint(&buf, uint64(m.Mode))
	putUvarint(&buf, uint64(m.UID))
	putUvarint(&buf, uint64(m.GID))
	putXattrs(&buf, m.Xattrs)
	return buf.Bytes()
}

// EncodeDirTree produces the canonical byte form of a DirTree. Entries
// are sorted by name before encoding so that a MutableTree built in any
// insertion order hashes identically.
func EncodeDirTree(t types.DirTree) []byte {
	entries := make([]types.DirEntry, len(t.Entries))
	copy(entries, t.Entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	var buf bytes.Buffer
	buf.WriteByte(tagDirTree)
	buf.Write(t.MetaChecksum[:])
	putUvarint(&buf, uint64(len(entries)))
	for _, e := range entries {
		putString(&buf, e.Name)
		if e.IsDir {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		buf.Write(e.Checksum[:])
	}
	return buf.Bytes()
}
