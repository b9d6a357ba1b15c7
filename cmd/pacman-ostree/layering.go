package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ImmutableArch/pacman-ostree/pkg/layering"
	"github.com/ImmutableArch/pacman-ostree/pkg/store"
	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

var installCmd = &cobra.Command{
	Use:   "install [packages...]",
	Short: "Layer packages on top of the currently booted commit",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInstall,
}

var installFreshCmd = &cobra.Command{
	Use:   "install-fresh [packages...]",
	Short: "Initialize a layered state from scratch against a base ref",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInstallFresh,
}

var removeCmd = &cobra.Command{
	Use:   "remove [packages...]",
	Short: "Drop layered packages from the currently booted commit",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRemove,
}

func init() {
	for _, c := range []*cobra.Command{installCmd, installFreshCmd, removeCmd} {
		c.Flags().String("os-ref", "archlinux/x86_64/base", "Booted symbolic ref (install/remove) or base ref (install-fresh)")
		c.Flags().String("cache-dir", "/var/cache/pacman-ostree", "pacman package cache directory")
		c.Flags().Bool("deploy", false, "Deploy the resulting commit as a new boot entry")
	}
}

func newEngine(cmd *cobra.Command) (*layering.Engine, store.Gateway, func(), error) {
	cacheDir, _ := cmd.Flags().GetString("cache-dir")
	gw, err := store.Open(repoFlag(cmd))
	if err != nil {
		return nil, nil, nil, err
	}

	broker, stopBroker := newWarningBroker()
	engine := layering.NewEngine(gw, cacheDir)
	engine.Broker = broker

	return engine, gw, stopBroker, nil
}

func printResult(label string, result *layering.Result) {
	fmt.Printf("%s -> commit %s\n", label, result.NewCommit)
	if len(result.NewlyInstalled) > 0 {
		fmt.Printf("  newly installed: %v\n", result.NewlyInstalled)
	}
	if result.DeploymentIndex != nil {
		fmt.Printf("  deployed at slot %d\n", *result.DeploymentIndex)
	}
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ref, _ := cmd.Flags().GetString("os-ref")
	deployFlag, _ := cmd.Flags().GetBool("deploy")

	engine, gw, stopBroker, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer gw.Close()
	defer stopBroker()

	result, err := engine.Install(ctx, types.SymbolicRef(ref), args, deployFlag)
	if err != nil {
		return err
	}
	printResult("install", result)
	return nil
}

func runInstallFresh(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	baseRef, _ := cmd.Flags().GetString("os-ref")
	deployFlag, _ := cmd.Flags().GetBool("deploy")

	engine, gw, stopBroker, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer gw.Close()
	defer stopBroker()

	result, err := engine.InstallFresh(ctx, types.SymbolicRef(baseRef), args, deployFlag)
	if err != nil {
		return err
	}
	printResult("install-fresh", result)
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ref, _ := cmd.Flags().GetString("os-ref")
	deployFlag, _ := cmd.Flags().GetBool("deploy")

	engine, gw, stopBroker, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer gw.Close()
	defer stopBroker()

	result, err := engine.Remove(ctx, types.SymbolicRef(ref), args, deployFlag)
	if err != nil {
		return err
	}
	printResult("remove", result)
	return nil
}
