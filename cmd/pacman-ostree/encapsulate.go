package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ImmutableArch/pacman-ostree/pkg/commit"
	"github.com/ImmutableArch/pacman-ostree/pkg/encapsulate"
	"github.com/ImmutableArch/pacman-ostree/pkg/pacman"
	"github.com/ImmutableArch/pacman-ostree/pkg/store"
	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

var encapsulateCmd = &cobra.Command{
	Use:   "encapsulate <ref> <output.ociarchive>",
	Short: "Pack a commit into a provenance-partitioned OCI archive",
	Args:  cobra.ExactArgs(2),
	RunE:  runEncapsulate,
}

func init() {
	encapsulateCmd.Flags().Uint32("max-layers", 0, "Maximum number of OCI layers (0 means one layer per content group)")
	encapsulateCmd.Flags().Uint32("format-version", 1, "Archive format version (>=2 writes explicit parent-directory tar entries)")
	encapsulateCmd.Flags().String("arch", "amd64", "Image architecture")
	encapsulateCmd.Flags().String("image-ref", "", "Reference tag to write into the OCI archive (defaults to the commit ref)")
}

func runEncapsulate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ref, outPath := args[0], args[1]

	maxLayers, _ := cmd.Flags().GetUint32("max-layers")
	formatVersion, _ := cmd.Flags().GetUint32("format-version")
	arch, _ := cmd.Flags().GetString("arch")
	imageRef, _ := cmd.Flags().GetString("image-ref")
	if imageRef == "" {
		imageRef = ref
	}

	gw, err := store.Open(repoFlag(cmd))
	if err != nil {
		return err
	}
	defer gw.Close()

	c, rootSum, err := gw.ReadCommit(ctx, types.SymbolicRef(ref))
	if err != nil {
		return err
	}

	stagingRoot, err := os.MkdirTemp("", "pacman-ostree-encapsulate-")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingRoot)

	if err := commit.Checkout(ctx, gw, types.SymbolicRef(ref), stagingRoot); err != nil {
		return err
	}

	packages, err := pacman.ReadPackageDatabase(stagingRoot)
	if err != nil {
		return err
	}

	prov, err := encapsulate.BuildProvenance(ctx, gw, rootSum, packages)
	if err != nil {
		return err
	}

	img, err := encapsulate.Pack(ctx, gw, c.Metadata, prov, encapsulate.Options{
		MaxLayers:     maxLayers,
		Architecture:  arch,
		FormatVersion: formatVersion,
	})
	if err != nil {
		return err
	}

	if err := encapsulate.WriteOCIArchive(img, imageRef, outPath); err != nil {
		return err
	}

	fmt.Printf("encapsulated %s -> %s\n", ref, outPath)
	return nil
}
