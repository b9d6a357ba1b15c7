package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ImmutableArch/pacman-ostree/pkg/commit"
	"github.com/ImmutableArch/pacman-ostree/pkg/layering"
	"github.com/ImmutableArch/pacman-ostree/pkg/manifest"
	"github.com/ImmutableArch/pacman-ostree/pkg/pacman"
	"github.com/ImmutableArch/pacman-ostree/pkg/rootfs"
	"github.com/ImmutableArch/pacman-ostree/pkg/selinux"
	"github.com/ImmutableArch/pacman-ostree/pkg/store"
	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Compose a manifest into a fresh commit",
	Long: `Pacstraps the manifest's packages into a scratch directory,
normalizes the result per the OSTree layout contract, and writes it as
a new commit bound to the given ref.

Example:
  pacman-ostree compose --manifest base.yaml --ref archlinux/x86_64/base`,
	RunE: runCompose,
}

func init() {
	composeCmd.Flags().String("manifest", "", "Manifest YAML file (required)")
	composeCmd.Flags().String("ref", "", "Symbolic ref to bind the new commit to (defaults to the manifest's own ref)")
	composeCmd.Flags().Int64("creation-time", 0, "Commit creation time as a unix timestamp (0 omits it)")
	_ = composeCmd.MarkFlagRequired("manifest")
}

func runCompose(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	manifestPath, _ := cmd.Flags().GetString("manifest")
	refFlag, _ := cmd.Flags().GetString("ref")
	creationTime, _ := cmd.Flags().GetInt64("creation-time")

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}
	ref := types.SymbolicRef(refFlag)
	if ref == "" {
		ref = types.SymbolicRef(m.Ref)
	}
	if ref == "" {
		return fmt.Errorf("no ref given on the command line or in the manifest")
	}

	stagingRoot, err := os.MkdirTemp("", "pacman-ostree-compose-")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingRoot)

	if err := pacman.PacstrapInstall(ctx, stagingRoot, m.Packages); err != nil {
		return err
	}

	if err := layering.EnableServices(ctx, stagingRoot, m.Services); err != nil {
		return err
	}
	if err := layering.RunPostInstallScripts(ctx, stagingRoot, m.Scripts); err != nil {
		return err
	}
	if _, err := layering.RebuildInitramfs(ctx, stagingRoot); err != nil {
		return err
	}

	broker, stopBroker := newWarningBroker()
	defer stopBroker()

	if _, err := rootfs.Normalize(stagingRoot, broker); err != nil {
		return err
	}

	policy, err := selinux.Load(filepath.Join(stagingRoot, "etc/selinux/default/contexts/files/file_contexts"))
	if err != nil {
		return err
	}

	gw, err := store.Open(repoFlag(cmd))
	if err != nil {
		return err
	}
	defer gw.Close()

	metadata := types.MetadataDict{}
	if m.Ref != "" {
		metadata["pacmanostree.ref"] = types.StringMeta(m.Ref)
	}

	sum, err := commit.GenerateFromRootfs(ctx, gw, stagingRoot, commit.Modifier{}, policy, metadata, creationTime, ref, broker)
	if err != nil {
		return err
	}

	fmt.Printf("composed %s -> %s\n", ref, sum)
	return nil
}
