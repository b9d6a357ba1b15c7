package types

import (
	"time"

	"github.com/opencontainers/go-digest"
)

// Checksum is a 32-byte SHA-256 digest identifying an Object in the store.
// Its canonical textual form is 64 lowercase hex characters.
type Checksum [32]byte

// String renders the canonical lowercase hex form.
func (c Checksum) String() string {
	const hextable = "0123456789abcdef"
	buf := make([]byte, 64)
	for i, b := range c {
		buf[i*2] = hextable[b>>4]
		buf[i*2+1] = hextable[b&0x0f]
	}
	return string(buf)
}

// IsZero reports whether c is the zero checksum (used as a sentinel for
// "no parent" / "no value").
func (c Checksum) IsZero() bool {
	return c == Checksum{}
}

// Digest converts the checksum to an OCI digest.Digest, for interop with
// go-containerregistry and containerd's content store.
func (c Checksum) Digest() digest.Digest {
	return digest.NewDigestFromEncoded(digest.SHA256, c.String())
}

// ChecksumFromDigest converts an OCI digest.Digest back into a Checksum.
// The digest must be a sha256 digest with a valid hex-encoded value.
func ChecksumFromDigest(d digest.Digest) (Checksum, error) {
	var c Checksum
	if d.Algorithm() != digest.SHA256 {
		return c, &Error{Kind: ErrEncoding, Context: "digest is not sha256: " + string(d.Algorithm())}
	}
	if err := decodeHexInto(c[:], d.Encoded()); err != nil {
		return c, &Error{Kind: ErrEncoding, Context: "malformed digest", Cause: err}
	}
	return c, nil
}

func decodeHexInto(dst []byte, src string) error {
	if len(src) != len(dst)*2 {
		return &Error{Kind: ErrEncoding, Context: "wrong hex length"}
	}
	for i := range dst {
		hi, ok1 := hexDigit(src[i*2])
		lo, ok2 := hexDigit(src[i*2+1])
		if !ok1 || !ok2 {
			return &Error{Kind: ErrEncoding, Context: "invalid hex digit"}
		}
		dst[i] = hi<<4 | lo
	}
	return nil
}

func hexDigit(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	default:
		return 0, false
	}
}

// SymbolicRef is a path-like name mapping to a Checksum in the store, e.g.
// "archlinux/x86_64/base" or "archlinux/layered".
type SymbolicRef string

// Valid reports whether the ref is a well-formed symbolic name: non-empty,
// no leading or trailing slash, and no empty segments.
func (r SymbolicRef) Valid() bool {
	s := string(r)
	if s == "" || s[0] == '/' || s[len(s)-1] == '/' {
		return false
	}
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '/' {
			if i == start {
				return false
			}
			start = i + 1
		}
	}
	return true
}

// OSName returns the first slash-separated segment of the ref, used as the
// deployment OS name by the layered-state engine.
func (r SymbolicRef) OSName() string {
	s := string(r)
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return s[:i]
		}
	}
	return s
}

// MetaValue is a typed commit-metadata value: either a string or an
// unsigned integer. Reserved keys ("version", "<project>.base-ref",
// "<project>.layered") are always strings.
type MetaValue struct {
	Str   string
	UInt  uint64
	IsInt bool
}

func StringMeta(s string) MetaValue   { return MetaValue{Str: s} }
func UintMeta(v uint64) MetaValue     { return MetaValue{UInt: v, IsInt: true} }

// MetadataDict is the string-keyed metadata dictionary carried by a Commit.
type MetadataDict map[string]MetaValue

// Commit is an immutable snapshot of a directory tree bound to metadata
// and a creation timestamp.
type Commit struct {
	Parent   Checksum // zero value means "no parent"
	Root     Checksum // root directory-tree checksum
	Metadata MetadataDict
	Time     time.Time // creation timestamp; zero means "not recorded"
}

// Xattr is a single extended attribute (key, value) pair.
type Xattr struct {
	Name  string
	Value []byte
}

// ObjectKind distinguishes the four persisted object shapes.
type ObjectKind int

const (
	KindRegularFile ObjectKind = iota
	KindSymlink
	KindDirMeta
	KindDirTree
)

// RegularFile is a persisted file object: content plus POSIX ownership,
// mode, and extended attributes.
type RegularFile struct {
	Mode    uint32
	UID     uint32
	GID     uint32
	Xattrs  []Xattr
	Content []byte
}

// Symlink is a persisted symbolic link object.
type Symlink struct {
	UID    uint32
	GID    uint32
	Xattrs []Xattr
	Target string
}

// DirMeta is a persisted directory-metadata object: ownership, mode, and
// extended attributes for one directory (not its contents).
type DirMeta struct {
	Mode   uint32
	UID    uint32
	GID    uint32
	Xattrs []Xattr
}

// DirEntry names one child of a DirTree: either a leaf object checksum or
// a nested sub-tree checksum.
type DirEntry struct {
	Name     string
	IsDir    bool
	Checksum Checksum // leaf object checksum, or child DirTree checksum
}

// DirTree is a persisted directory-tree object: an ordered list of named
// children plus the checksum of this directory's own DirMeta.
type DirTree struct {
	MetaChecksum Checksum
	Entries      []DirEntry // kept sorted by Name
}

// PackageMeta describes one installed package as recorded in the package
// database at commit time.
type PackageMeta struct {
	Name          string
	Version       string
	Arch          string
	InstallSize   uint64
	BuildTime     time.Time
	SourcePackage string
	Provides      []string // absolute paths this package owns
	Changelogs    []time.Time
}

// NEVRA returns the composite content-id "name-version.arch" used to
// identify this package as a provenance group.
func (p PackageMeta) NEVRA() string {
	return p.Name + "-" + p.Version + "." + p.Arch
}

// LayeredState is the pair (base ref, supplemental package set) plus the
// commit it was most recently derived from. It is serialized into every
// produced commit's metadata so that any commit is self-describing.
type LayeredState struct {
	BaseRef        SymbolicRef
	LayeredPackages []string // sorted, unique
	DeployedCommit Checksum  // zero means "not yet deployed from a commit"
}

// DefaultBaseRef is used by Load when a commit carries no base-ref key.
const DefaultBaseRef = SymbolicRef("archlinux/x86_64/base")

// ProvenanceMap assigns every path in a commit to an ordered set of
// content-ids; component ids take precedence over package ids.
type ProvenanceMap struct {
	Components map[string][]string // path -> content-ids contributed by component xattrs
	Packages   map[string][]string // path -> content-ids contributed by package ownership
}

// ContentGroup is one provenance group: a package, a component, the
// unpackaged sentinel, or the kernel/initramfs special case.
type ContentGroup struct {
	ContentID       string
	Name            string
	SourceID        string
	ChangeTimeOffset uint32 // hours since the earliest build-time across packages
	ChangeFrequency  uint32 // changelog entry count
}

// UnpackagedContentID is the sentinel content-id for files owned by no
// package and no component.
const UnpackagedContentID = "pacmanostree-unpackaged-content"
