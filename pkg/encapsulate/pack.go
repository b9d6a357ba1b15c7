package encapsulate

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strconv"

	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/tarball"

	"github.com/ImmutableArch/pacman-ostree/pkg/metrics"
	"github.com/ImmutableArch/pacman-ostree/pkg/store"
	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

// inputHashMetaKey mirrors pkg/layering.MetaKeyInputHash: the opt-copy
// list always implicitly includes it, per §4.5 step 9. Duplicated as a
// literal rather than imported to keep the encapsulator independent of
// the layering engine's metadata-key constants.
const inputHashMetaKey = "pacmanostree.inputhash"

// Options configures §4.5 step 9, the archive producer invocation.
type Options struct {
	MaxLayers uint32
	Labels    map[string]string

	// Architecture overrides the image platform; OS always defaults to
	// "linux".
	Architecture string

	// ImageConfig, when non-nil, replaces the base OCI config's Config
	// section wholesale (the "config" field of the image spec) before
	// labels are applied on top.
	ImageConfig *v1.Config

	// FormatVersion >= 2 writes explicit parent-directory entries into
	// each layer's tar stream ahead of their children.
	FormatVersion uint32

	// CopyMetaKeys and CopyMetaOptKeys name commit metadata keys copied
	// onto the image as labels; the opt list always implicitly includes
	// inputHashMetaKey.
	CopyMetaKeys    []string
	CopyMetaOptKeys []string

	// PriorLayers, when non-empty, mirrors an existing build's layer
	// structure instead of repacking from scratch: each entry is the
	// content-ids previously packed into that layer, in layer order.
	// Content-ids present in this build but absent from every prior
	// layer are appended as one final new layer.
	PriorLayers [][]string
}

// Pack implements §4.5 step 9: partition the provenance's content groups
// into at most opts.MaxLayers layers, serialize each layer's member
// objects into a tar stream, and assemble an OCI image around them.
func Pack(ctx context.Context, gw store.Gateway, commitMeta types.MetadataDict, prov *Provenance, opts Options) (resultImg v1.Image, resultErr error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.EncapsulationDuration)
		outcome := "ok"
		if resultErr != nil {
			outcome = "error"
		}
		metrics.EncapsulationsTotal.WithLabelValues(outcome).Inc()
	}()

	if opts.MaxLayers == 0 {
		opts.MaxLayers = uint32(len(prov.Groups))
	}

	img := empty.Image
	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, types.Wrap(types.ErrEncoding, err, "read base image config")
	}
	cfg = cfg.DeepCopy()
	cfg.OS = "linux"
	if opts.Architecture != "" {
		cfg.Architecture = opts.Architecture
	} else {
		cfg.Architecture = "amd64"
	}
	if opts.ImageConfig != nil {
		cfg.Config = *opts.ImageConfig
	}
	if cfg.Config.Labels == nil {
		cfg.Config.Labels = map[string]string{}
	}
	for k, v := range buildLabels(commitMeta, opts) {
		cfg.Config.Labels[k] = v
	}
	img, err = mutate.ConfigFile(img, cfg)
	if err != nil {
		return nil, types.Wrap(types.ErrEncoding, err, "set image config")
	}

	layerBuckets := partitionLayers(prov, opts)
	for _, members := range layerBuckets {
		layerData, err := buildLayerTar(ctx, gw, members, opts.FormatVersion)
		if err != nil {
			return nil, err
		}
		metrics.LayerSizeBytes.Observe(float64(len(layerData)))
		data := layerData
		layer, err := tarball.LayerFromOpener(func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		})
		if err != nil {
			return nil, types.Wrap(types.ErrEncoding, err, "build layer")
		}
		img, err = mutate.AppendLayers(img, layer)
		if err != nil {
			return nil, types.Wrap(types.ErrEncoding, err, "append layer")
		}
	}
	metrics.LayersProducedTotal.Observe(float64(len(layerBuckets)))
	return img, nil
}

// WriteOCIArchive writes img as an OCI-layout tarball at destPath,
// tagged with imageRef.
func WriteOCIArchive(img v1.Image, imageRef, destPath string) error {
	ref, err := name.ParseReference(imageRef)
	if err != nil {
		return types.Wrap(types.ErrConfiguration, err, "parse image reference %q", imageRef)
	}
	if err := tarball.WriteToFile(destPath, ref, img); err != nil {
		return types.Wrap(types.ErrIO, err, "write OCI archive to %s", destPath)
	}
	return nil
}

func buildLabels(commitMeta types.MetadataDict, opts Options) map[string]string {
	labels := make(map[string]string, len(opts.Labels)+len(opts.CopyMetaKeys)+len(opts.CopyMetaOptKeys)+1)
	for k, v := range opts.Labels {
		labels[k] = v
	}
	for _, key := range opts.CopyMetaKeys {
		if v, ok := commitMeta[key]; ok {
			labels[key] = metaValueString(v)
		}
	}

	optKeys := map[string]bool{inputHashMetaKey: true}
	for _, k := range opts.CopyMetaOptKeys {
		optKeys[k] = true
	}
	for key := range optKeys {
		if v, ok := commitMeta[key]; ok {
			labels[key] = metaValueString(v)
		}
	}
	return labels
}

func metaValueString(v types.MetaValue) string {
	if v.IsInt {
		return strconv.FormatUint(v.UInt, 10)
	}
	return v.Str
}

// partitionLayers orders every non-empty content group by
// (change-time-offset, change-frequency, content-id) — the priority
// order §4.5 step 9 packs by — then splits that sequence into layers,
// either mirroring opts.PriorLayers or via a fresh size-balanced
// partition.
func partitionLayers(prov *Provenance, opts Options) [][]PathChecksum {
	membersByID := make(map[string][]PathChecksum, len(prov.Groups))
	for id, objs := range prov.PackageObjects {
		membersByID[id] = objs
	}
	for id, objs := range prov.ComponentObjects {
		membersByID[id] = objs
	}

	ordered := make([]types.ContentGroup, len(prov.Groups))
	copy(ordered, prov.Groups)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.ChangeTimeOffset != b.ChangeTimeOffset {
			return a.ChangeTimeOffset < b.ChangeTimeOffset
		}
		if a.ChangeFrequency != b.ChangeFrequency {
			return a.ChangeFrequency < b.ChangeFrequency
		}
		return a.ContentID < b.ContentID
	})

	orderedIDs := make([]string, 0, len(ordered))
	for _, g := range ordered {
		if len(membersByID[g.ContentID]) > 0 {
			orderedIDs = append(orderedIDs, g.ContentID)
		}
	}

	var idBuckets [][]string
	if len(opts.PriorLayers) > 0 {
		idBuckets = mirrorPriorLayers(orderedIDs, opts.PriorLayers)
	} else {
		idBuckets = greedyPartition(orderedIDs, prov.Sizes, int(opts.MaxLayers))
	}

	layers := make([][]PathChecksum, 0, len(idBuckets))
	for _, ids := range idBuckets {
		var flat []PathChecksum
		for _, id := range ids {
			flat = append(flat, membersByID[id]...)
		}
		sort.Slice(flat, func(i, j int) bool { return flat[i].Path < flat[j].Path })
		layers = append(layers, flat)
	}
	return layers
}

// greedyPartition splits ids (already in priority order) into at most
// maxLayers contiguous, size-balanced buckets via a running-total
// linear partition: it never reorders ids, only decides where to cut,
// so the same inputs always produce the same buckets.
func greedyPartition(ids []string, sizes map[string]int64, maxLayers int) [][]string {
	if maxLayers <= 0 || maxLayers >= len(ids) {
		out := make([][]string, len(ids))
		for i, id := range ids {
			out[i] = []string{id}
		}
		return out
	}

	var total int64
	for _, id := range ids {
		total += sizes[id]
	}
	target := total / int64(maxLayers)
	if target == 0 {
		target = 1
	}

	buckets := make([][]string, 0, maxLayers)
	var current []string
	var currentSize int64
	remaining := len(ids)

	for _, id := range ids {
		current = append(current, id)
		currentSize += sizes[id]
		remaining--

		bucketsLeft := maxLayers - len(buckets) - 1
		if bucketsLeft <= 0 {
			continue // final bucket absorbs everything left
		}
		if currentSize >= target && remaining >= bucketsLeft {
			buckets = append(buckets, current)
			current = nil
			currentSize = 0
		}
	}
	if len(current) > 0 || len(buckets) == 0 {
		buckets = append(buckets, current)
	}
	return buckets
}

// mirrorPriorLayers reconstructs the bucket structure of a previous
// build: every content-id still present in this build keeps the layer
// it occupied before, in the prior layer order; anything new is
// appended as one final layer.
func mirrorPriorLayers(orderedIDs []string, prior [][]string) [][]string {
	present := make(map[string]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		present[id] = true
	}
	consumed := make(map[string]bool, len(orderedIDs))

	buckets := make([][]string, 0, len(prior)+1)
	for _, layer := range prior {
		ids := append([]string{}, layer...)
		sort.Strings(ids)
		var bucket []string
		for _, id := range ids {
			if present[id] {
				bucket = append(bucket, id)
				consumed[id] = true
			}
		}
		if len(bucket) > 0 {
			buckets = append(buckets, bucket)
		}
	}

	var leftover []string
	for _, id := range orderedIDs {
		if !consumed[id] {
			leftover = append(leftover, id)
		}
	}
	if len(leftover) > 0 {
		buckets = append(buckets, leftover)
	}
	return buckets
}

// buildLayerTar serializes members, already sorted by path, into a tar
// stream. formatVersion >= 2 writes each path's parent directories
// explicitly ahead of its own entry, matching stricter tar consumers
// that reject an entry whose parent was never declared.
func buildLayerTar(ctx context.Context, gw store.Gateway, members []PathChecksum, formatVersion uint32) ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	writtenDirs := map[string]bool{}
	for _, m := range members {
		if formatVersion >= 2 {
			if err := writeParentDirs(tw, m.Path, writtenDirs); err != nil {
				return nil, err
			}
		}

		if rf, err := gw.ReadRegularFile(ctx, m.Checksum); err == nil {
			hdr := &tar.Header{
				Typeflag: tar.TypeReg,
				Name:     m.Path,
				Mode:     int64(rf.Mode & 0o7777),
				Uid:      int(rf.UID),
				Gid:      int(rf.GID),
				Size:     int64(len(rf.Content)),
			}
			if err := tw.WriteHeader(hdr); err != nil {
				return nil, types.Wrap(types.ErrIO, err, "write layer tar header for %s", m.Path)
			}
			if _, err := tw.Write(rf.Content); err != nil {
				return nil, types.Wrap(types.ErrIO, err, "write layer tar content for %s", m.Path)
			}
			continue
		}

		sl, err := gw.ReadSymlink(ctx, m.Checksum)
		if err != nil {
			return nil, err
		}
		hdr := &tar.Header{
			Typeflag: tar.TypeSymlink,
			Name:     m.Path,
			Linkname: sl.Target,
			Mode:     0o777,
			Uid:      int(sl.UID),
			Gid:      int(sl.GID),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, types.Wrap(types.ErrIO, err, "write layer tar symlink header for %s", m.Path)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, types.Wrap(types.ErrIO, err, "close layer tar")
	}
	return buf.Bytes(), nil
}

func writeParentDirs(tw *tar.Writer, p string, written map[string]bool) error {
	dir := path.Dir(p)
	if dir == "." || dir == "/" || written[dir] {
		return nil
	}
	if err := writeParentDirs(tw, dir, written); err != nil {
		return err
	}
	written[dir] = true
	return tw.WriteHeader(&tar.Header{Typeflag: tar.TypeDir, Name: dir + "/", Mode: 0o755})
}
