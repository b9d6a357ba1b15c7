package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ImmutableArch/pacman-ostree/pkg/commit"
	"github.com/ImmutableArch/pacman-ostree/pkg/store"
	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

var checkoutCmd = &cobra.Command{
	Use:   "checkout <ref> <destination>",
	Short: "Check out a commit's tree to a flat directory",
	Args:  cobra.ExactArgs(2),
	RunE:  runCheckout,
}

func runCheckout(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ref, dest := args[0], args[1]

	gw, err := store.Open(repoFlag(cmd))
	if err != nil {
		return err
	}
	defer gw.Close()

	if err := commit.Checkout(ctx, gw, types.SymbolicRef(ref), dest); err != nil {
		return err
	}
	fmt.Printf("checked out %s -> %s\n", ref, dest)
	return nil
}
