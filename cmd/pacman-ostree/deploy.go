package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ImmutableArch/pacman-ostree/pkg/layering"
	"github.com/ImmutableArch/pacman-ostree/pkg/store"
	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

var deployCmd = &cobra.Command{
	Use:   "deploy <os-name> <ref>",
	Short: "Stage a commit as a new bootloader entry",
	Long: `Resolves ref to a commit and invokes the external deployment
tool to stage it as a new boot entry for os-name. Requires root.`,
	Args: cobra.ExactArgs(2),
	RunE: runDeploy,
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	osName, ref := args[0], args[1]

	gw, err := store.Open(repoFlag(cmd))
	if err != nil {
		return err
	}
	defer gw.Close()

	sum, err := gw.Resolve(ctx, types.SymbolicRef(ref), false)
	if err != nil {
		return err
	}

	slot, err := layering.Deploy(ctx, osName, sum)
	if err != nil {
		return err
	}

	fmt.Printf("deployed %s (%s) at slot %d\n", ref, sum, slot)
	return nil
}
