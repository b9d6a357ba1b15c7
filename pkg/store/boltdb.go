package store

import (
	"context"
	"encoding/json"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

// Bucket layout, following the one-bucket-per-entity convention this
// package's teacher used for cluster state: here there are exactly two
// entities, refs and commits.
var (
	bucketRefs    = []byte("refs")
	bucketCommits = []byte("commits")
)

// boltGateway is the Gateway implementation: a blobStore for content and
// a BoltDB index for the ref namespace and commit metadata.
type boltGateway struct {
	blobs *blobStore
	db    *bolt.DB
}

func openBoltGateway(dir string) (Gateway, error) {
	blobs, err := newBlobStore(filepath.Join(dir, "objects"))
	if err != nil {
		return nil, err
	}

	db, err := bolt.Open(filepath.Join(dir, "refs.db"), 0o600, nil)
	if err != nil {
		return nil, types.Wrap(types.ErrStoreUnavailable, err, "open ref index")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRefs); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketCommits); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, types.Wrap(types.ErrStoreUnavailable, err, "initialize ref index buckets")
	}

	return &boltGateway{blobs: blobs, db: db}, nil
}

type commitRecord struct {
	Parent   string            `json:"parent,omitempty"`
	Root     string            `json:"root"`
	Metadata map[string]string `json:"metadata,omitempty"`
	MetaInts map[string]uint64 `json:"meta_ints,omitempty"`
	Time     int64             `json:"time,omitempty"`
}

func (g *boltGateway) Resolve(ctx context.Context, ref types.SymbolicRef, allowMissing bool) (types.Checksum, error) {
	var out types.Checksum
	var found bool
	err := g.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRefs).Get([]byte(ref))
		if v == nil {
			return nil
		}
		found = true
		copy(out[:], v)
		return nil
	})
	if err != nil {
		return types.Checksum{}, types.Wrap(types.ErrStoreUnavailable, err, "resolve ref %s", ref)
	}
	if !found {
		if allowMissing {
			return types.Checksum{}, nil
		}
		return types.Checksum{}, types.Newf(types.ErrStoreUnavailable, "ref not found: %s", ref)
	}
	return out, nil
}

func (g *boltGateway) SetRef(ctx context.Context, ref types.SymbolicRef, sum types.Checksum) error {
	if !ref.Valid() {
		return types.Newf(types.ErrConfiguration, "malformed ref: %s", ref)
	}
	return g.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRefs).Put([]byte(ref), sum[:])
	})
}

func (g *boltGateway) ReadCommit(ctx context.Context, ref types.SymbolicRef) (*types.Commit, types.Checksum, error) {
	sum, err := g.Resolve(ctx, ref, false)
	if err != nil {
		return nil, types.Checksum{}, err
	}
	c, err := g.ReadCommitByChecksum(ctx, sum)
	if err != nil {
		return nil, types.Checksum{}, err
	}
	return c, c.Root, nil
}

func (g *boltGateway) ReadCommitByChecksum(ctx context.Context, sum types.Checksum) (*types.Commit, error) {
	var rec commitRecord
	var found bool
	err := g.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCommits).Get(sum[:])
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return nil, types.Wrap(types.ErrEncoding, err, "decode commit %s", sum)
	}
	if !found {
		return nil, types.Newf(types.ErrStoreUnavailable, "commit not found: %s", sum)
	}
	return recordToCommit(rec)
}

func recordToCommit(rec commitRecord) (*types.Commit, error) {
	c := &types.Commit{Metadata: types.MetadataDict{}}
	for k, v := range rec.Metadata {
		c.Metadata[k] = types.StringMeta(v)
	}
	for k, v := range rec.MetaInts {
		c.Metadata[k] = types.UintMeta(v)
	}
	if rec.Parent != "" {
		if err := decodeHexInto(c.Parent[:], rec.Parent); err != nil {
			return nil, types.Wrap(types.ErrEncoding, err, "decode parent checksum")
		}
	}
	if err := decodeHexInto(c.Root[:], rec.Root); err != nil {
		return nil, types.Wrap(types.ErrEncoding, err, "decode root checksum")
	}
	if rec.Time > 0 {
		c.Time = timeFromUnix(rec.Time)
	}
	return c, nil
}

func (g *boltGateway) putCommit(ctx context.Context, sum types.Checksum, c *types.Commit) error {
	rec := commitRecord{
		Root:     c.Root.String(),
		Metadata: map[string]string{},
		MetaInts: map[string]uint64{},
	}
	if !c.Parent.IsZero() {
		rec.Parent = c.Parent.String()
	}
	for k, v := range c.Metadata {
		if v.IsInt {
			rec.MetaInts[k] = v.UInt
		} else {
			rec.Metadata[k] = v.Str
		}
	}
	if !c.Time.IsZero() {
		rec.Time = c.Time.Unix()
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return types.Wrap(types.ErrEncoding, err, "encode commit")
	}
	return g.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCommits).Put(sum[:], raw)
	})
}

func (g *boltGateway) ReadDirTree(ctx context.Context, sum types.Checksum) (*types.DirTree, error) {
	raw, err := g.blobs.get(ctx, sum)
	if err != nil {
		return nil, err
	}
	return decodeDirTree(raw)
}

func (g *boltGateway) ReadDirMeta(ctx context.Context, sum types.Checksum) (*types.DirMeta, error) {
	raw, err := g.blobs.get(ctx, sum)
	if err != nil {
		return nil, err
	}
	return decodeDirMeta(raw)
}

func (g *boltGateway) ReadRegularFile(ctx context.Context, sum types.Checksum) (*types.RegularFile, error) {
	raw, err := g.blobs.get(ctx, sum)
	if err != nil {
		return nil, err
	}
	return decodeRegularFile(raw)
}

func (g *boltGateway) ReadSymlink(ctx context.Context, sum types.Checksum) (*types.Symlink, error) {
	raw, err := g.blobs.get(ctx, sum)
	if err != nil {
		return nil, err
	}
	return decodeSymlink(raw)
}

func (g *boltGateway) Size(ctx context.Context, sum types.Checksum) (int64, error) {
	return g.blobs.size(ctx, sum)
}

func (g *boltGateway) Transaction(ctx context.Context) (*Transaction, error) {
	return newTransaction(ctx, g), nil
}

func (g *boltGateway) Close() error {
	return g.db.Close()
}
