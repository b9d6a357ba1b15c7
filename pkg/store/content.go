package store

import (
	"context"
	"crypto/sha256"
	"errors"
	"io"

	"github.com/containerd/containerd/content"
	"github.com/containerd/containerd/content/local"
	"github.com/containerd/containerd/errdefs"
	digest "github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

// blobStore wraps containerd's local content store, which already
// provides digest-addressed ingest with natural deduplication (a write
// whose digest already exists is a no-op Commit). This is the teacher's
// containerd dependency, repurposed from pulling container images to
// backing the object store's blob layer.
type blobStore struct {
	cs content.Store
}

func newBlobStore(root string) (*blobStore, error) {
	cs, err := local.NewStore(root)
	if err != nil {
		return nil, types.Wrap(types.ErrStoreUnavailable, err, "open content store at %s", root)
	}
	return &blobStore{cs: cs}, nil
}

// put ingests raw bytes and returns their checksum. Ingesting content
// that already exists is a cheap no-op thanks to digest-keyed dedup.
func (b *blobStore) put(ctx context.Context, raw []byte) (types.Checksum, error) {
	sum := sha256.Sum256(raw)
	dg := types.Checksum(sum).Digest()

	ref := "blob-" + dg.Encoded()
	w, err := b.cs.Writer(ctx, content.WithRef(ref), content.WithDescriptor(ociDescriptor(dg, int64(len(raw)))))
	if err != nil {
		if errdefs.IsAlreadyExists(err) {
			return types.Checksum(sum), nil
		}
		return types.Checksum{}, types.Wrap(types.ErrIO, err, "open content writer for %s", dg)
	}
	defer w.Close()

	if _, err := w.Write(raw); err != nil {
		return types.Checksum{}, types.Wrap(types.ErrIO, err, "write content for %s", dg)
	}
	if err := w.Commit(ctx, int64(len(raw)), dg); err != nil && !errdefs.IsAlreadyExists(err) {
		return types.Checksum{}, types.Wrap(types.ErrIO, err, "commit content for %s", dg)
	}
	return types.Checksum(sum), nil
}

func (b *blobStore) get(ctx context.Context, sum types.Checksum) ([]byte, error) {
	dg := sum.Digest()
	ra, err := b.cs.ReaderAt(ctx, ociDescriptor(dg, 0))
	if err != nil {
		if errors.Is(err, errdefs.ErrNotFound) {
			return nil, types.Newf(types.ErrStoreUnavailable, "object %s not found", sum)
		}
		return nil, types.Wrap(types.ErrIO, err, "open reader for %s", sum)
	}
	defer ra.Close()

	buf := make([]byte, ra.Size())
	if _, err := io.ReadFull(io.NewSectionReader(ra, 0, ra.Size()), buf); err != nil {
		return nil, types.Wrap(types.ErrIO, err, "read content for %s", sum)
	}
	return buf, nil
}

func (b *blobStore) size(ctx context.Context, sum types.Checksum) (int64, error) {
	info, err := b.cs.Info(ctx, sum.Digest())
	if err != nil {
		return 0, types.Wrap(types.ErrIO, err, "stat content for %s", sum)
	}
	return info.Size, nil
}

func ociDescriptor(dg digest.Digest, size int64) ocispec.Descriptor {
	return ocispec.Descriptor{Digest: dg, Size: size}
}
