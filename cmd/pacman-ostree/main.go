package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/ImmutableArch/pacman-ostree/pkg/diag"
	"github.com/ImmutableArch/pacman-ostree/pkg/log"
	"github.com/ImmutableArch/pacman-ostree/pkg/metrics"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pacman-ostree",
	Short: "Compose immutable, content-addressed Arch Linux OS images",
	Long: `pacman-ostree composes an immutable, content-addressed operating
system image for an Arch Linux derivative from a declarative manifest
and a persistent object store, and packages commits into provenance-
partitioned OCI archives.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"pacman-ostree version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("repo", "/var/lib/pacman-ostree/repo", "Path to the object store repository")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Address to serve Prometheus metrics on (disabled if empty)")

	cobra.OnInitialize(initLogging, initMetricsServer)

	rootCmd.AddCommand(composeCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(installFreshCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(checkoutCmd)
	rootCmd.AddCommand(encapsulateCmd)
	rootCmd.AddCommand(deployCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func initMetricsServer() {
	addr, _ := rootCmd.PersistentFlags().GetString("metrics-addr")
	if addr == "" {
		return
	}
	metrics.SetVersion(Version)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/healthz", metrics.HealthHandler())
		mux.HandleFunc("/livez", metrics.LivenessHandler())
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Logger.Warn().Err(err).Msg("metrics server exited")
		}
	}()
}

func repoFlag(cmd *cobra.Command) string {
	root := cmd.Root()
	v, _ := root.PersistentFlags().GetString("repo")
	return v
}

// newWarningBroker starts a diag.Broker, subscribes a goroutine that
// logs every warning it receives, and returns the broker alongside a
// cleanup func the caller must defer. A broker that is never started
// and drained blocks forever once its 100-warning buffer fills
// (Broker.Publish has no other way out short of Stop), so every
// command that threads a broker into the core must go through this.
func newWarningBroker() (*diag.Broker, func()) {
	broker := diag.NewBroker()
	broker.Start()

	sub := broker.Subscribe()
	logger := log.WithComponent("diag")
	go func() {
		for w := range sub {
			logger.Warn().Str("kind", string(w.Kind)).Msg(w.Message)
		}
	}()

	return broker, func() {
		broker.Unsubscribe(sub)
		broker.Stop()
	}
}
