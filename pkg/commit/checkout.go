package commit

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"os/exec"
	"path"

	"golang.org/x/sync/errgroup"

	"github.com/ImmutableArch/pacman-ostree/pkg/metrics"
	"github.com/ImmutableArch/pacman-ostree/pkg/store"
	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

// Checkout implements §4.3.2: it serializes the commit's tree as a tar
// stream on a goroutine and pipes that stream into an external "tar -x"
// extractor whose current directory is dest. dest is created if absent.
//
// Both ends must succeed. When both fail (the common case, since one
// side failing usually breaks the pipe for the other), the returned
// error names both failures via types.DualFailure.
func Checkout(ctx context.Context, gw store.Gateway, ref types.SymbolicRef, dest string) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CommitCheckoutDuration)

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return types.Wrap(types.ErrIO, err, "create checkout destination %s", dest)
	}

	_, rootSum, err := gw.ReadCommit(ctx, ref)
	if err != nil {
		return err
	}

	pr, pw := io.Pipe()

	cmd := exec.CommandContext(ctx, "tar", "-x", "--xattrs", "--xattrs-include=*", "--no-selinux", "-f", "-")
	cmd.Dir = dest
	cmd.Stdin = pr
	var stderr linebuf
	cmd.Stderr = &stderr

	// Each side records its own outcome independently rather than relying
	// on errgroup.Group.Wait's single combined error, since a dual
	// failure needs both underlying errors named.
	var produceErr, extractErr error
	g := new(errgroup.Group)

	g.Go(func() error {
		defer pw.Close()
		tw := tar.NewWriter(pw)
		if err := writeTarTree(ctx, gw, rootSum, "", tw); err != nil {
			produceErr = err
			return err
		}
		produceErr = tw.Close()
		return produceErr
	})

	g.Go(func() error {
		extractErr = cmd.Run()
		pr.CloseWithError(io.EOF) // unblock the producer if the extractor exits first
		return extractErr
	})

	_ = g.Wait()

	if produceErr != nil && extractErr != nil {
		return types.DualFailure(produceErr, types.Wrap(types.ErrSubprocessFailed, extractErr, "tar extractor failed\nstderr:\n%s", stderr.String()))
	}
	if extractErr != nil {
		return types.Wrap(types.ErrSubprocessFailed, extractErr, "tar extractor failed\nstderr:\n%s", stderr.String())
	}
	if produceErr != nil {
		return produceErr
	}
	return nil
}

// writeTarTree recursively serializes one directory-tree object into tw,
// reconstructing a conventional filesystem archive (directories as
// entries whose names end in "/", symlinks via typeflag, regular files
// with their content) from the store's object graph.
func writeTarTree(ctx context.Context, gw store.Gateway, treeSum types.Checksum, prefix string, tw *tar.Writer) error {
	tree, err := gw.ReadDirTree(ctx, treeSum)
	if err != nil {
		return err
	}
	meta, err := gw.ReadDirMeta(ctx, tree.MetaChecksum)
	if err != nil {
		return err
	}

	if prefix != "" {
		if err := writeTarDirHeader(tw, prefix, meta); err != nil {
			return err
		}
	}

	for _, e := range tree.Entries {
		childPath := path.Join(prefix, e.Name)
		if e.IsDir {
			if err := writeTarTree(ctx, gw, e.Checksum, childPath, tw); err != nil {
				return err
			}
			continue
		}

		// A leaf object may be a regular file or a symlink; try regular
		// file first and fall back, since the store does not expose the
		// object's kind without reading it.
		if rf, err := gw.ReadRegularFile(ctx, e.Checksum); err == nil {
			if err := writeTarFileHeader(tw, childPath, rf); err != nil {
				return err
			}
			continue
		}
		sl, err := gw.ReadSymlink(ctx, e.Checksum)
		if err != nil {
			return err
		}
		if err := writeTarSymlinkHeader(tw, childPath, sl); err != nil {
			return err
		}
	}
	return nil
}

func writeTarDirHeader(tw *tar.Writer, p string, meta *types.DirMeta) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeDir,
		Name:     p + "/",
		Mode:     int64(meta.Mode & 0o7777),
		Uid:      int(meta.UID),
		Gid:      int(meta.GID),
	}
	applyTarXattrs(hdr, meta.Xattrs)
	return tw.WriteHeader(hdr)
}

func writeTarFileHeader(tw *tar.Writer, p string, f *types.RegularFile) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     p,
		Mode:     int64(f.Mode & 0o7777),
		Uid:      int(f.UID),
		Gid:      int(f.GID),
		Size:     int64(len(f.Content)),
	}
	applyTarXattrs(hdr, f.Xattrs)
	if err := tw.WriteHeader(hdr); err != nil {
		return types.Wrap(types.ErrIO, err, "write tar header for %s", p)
	}
	if _, err := tw.Write(f.Content); err != nil {
		return types.Wrap(types.ErrIO, err, "write tar content for %s", p)
	}
	return nil
}

func writeTarSymlinkHeader(tw *tar.Writer, p string, s *types.Symlink) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeSymlink,
		Name:     p,
		Linkname: s.Target,
		Mode:     0o777,
		Uid:      int(s.UID),
		Gid:      int(s.GID),
	}
	applyTarXattrs(hdr, s.Xattrs)
	return tw.WriteHeader(hdr)
}

// applyTarXattrs writes every captured xattr into the PAX record space
// using the SCHILY.xattr convention GNU/BSD tar and the --xattrs
// extractor flag understand.
func applyTarXattrs(hdr *tar.Header, xattrs []types.Xattr) {
	for _, x := range xattrs {
		if hdr.PAXRecords == nil {
			hdr.PAXRecords = map[string]string{}
		}
		hdr.PAXRecords["SCHILY.xattr."+x.Name] = string(x.Value)
		hdr.Format = tar.FormatPAX
	}
}

// linebuf is a minimal io.Writer capturing stderr bytes for error
// messages without pulling in bytes.Buffer's broader surface.
type linebuf struct {
	data []byte
}

func (l *linebuf) Write(p []byte) (int, error) {
	l.data = append(l.data, p...)
	return len(p), nil
}

func (l *linebuf) String() string {
	return string(l.data)
}
