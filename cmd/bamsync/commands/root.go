// Package commands implements the bamsync CLI.
package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/netgrove/bamsync/internal/logger"
	"github.com/netgrove/bamsync/pkg/bam"
	"github.com/netgrove/bamsync/pkg/checkpoint"
	"github.com/netgrove/bamsync/pkg/config"
	"github.com/netgrove/bamsync/pkg/metrics"
	"github.com/netgrove/bamsync/pkg/resolver"
)

// Exit codes: 0 clean, 1 the run finished but some rows failed or were
// rejected, 2 the run could not proceed at all.
const (
	exitOK      = 0
	exitPartial = 1
	exitFatal   = 2
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
	verbose bool
)

// partialError marks a completed run with per-row failures, mapped to
// exit code 1 instead of 2.
type partialError struct{ msg string }

func (e *partialError) Error() string { return e.msg }

func partialf(format string, args ...any) error {
	return &partialError{msg: fmt.Sprintf(format, args...)}
}

var rootCmd = &cobra.Command{
	Use:   "bamsync",
	Short: "Bulk CSV synchronization for BlueCat Address Manager",
	Long: `bamsync reconciles CSV-described IPAM, DNS, DHCP, and admin objects
against a BlueCat Address Manager server: it parses and validates the
input, diffs each row against the live server, orders the resulting
operations by dependency, and executes them concurrently with
checkpointing and rollback support.

Use "bamsync [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		rootCmd.PrintErrf("Error: %v\n", err)
		var pe *partialError
		if errors.As(err, &pe) {
			return exitPartial
		}
		return exitFatal
	}
	return exitOK
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./bamsync.yaml or $XDG_CONFIG_HOME/bamsync/bamsync.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(selfTestCmd)
	rootCmd.AddCommand(fixCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads configuration and initializes the logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	level := cfg.Logging.Level
	if verbose {
		level = "DEBUG"
	}
	if err := logger.Init(logger.Config{
		Level:  level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// newClient builds the API client from configuration. The server URL is
// required for every command that talks to the network.
func newClient(cfg *config.Config, allowDangerous bool) (*bam.Client, error) {
	if cfg.Server.URL == "" {
		return nil, fmt.Errorf("no server configured: set server.url in the config file or BAM_URL in the environment")
	}
	return bam.New(bam.Config{
		URL:            cfg.Server.URL,
		Username:       cfg.Server.Username,
		Password:       cfg.Server.Password,
		APIVersion:     cfg.Server.APIVersion,
		VerifySSL:      cfg.Server.VerifySSL,
		Timeout:        cfg.Server.Timeout,
		MaxConnections: cfg.Server.MaxConnections,
		MaxKeepalive:   cfg.Server.MaxKeepalive,
		RetryAttempts:  cfg.Server.RetryAttempts,
		AllowDangerous: allowDangerous,
	})
}

// newResolver builds the path resolver; noCache bypasses every cache
// layer for this run.
func newResolver(cfg *config.Config, client *bam.Client, noCache bool, m *metrics.SyncMetrics) *resolver.Resolver {
	return resolver.New(client, resolver.Options{
		CacheDir:    cfg.Cache.Dir,
		TTL:         cfg.Cache.TTL,
		NegativeTTL: cfg.Cache.NegativeTTL,
		Bypass:      noCache,
		Metrics:     m,
	})
}

// newStore opens the checkpoint database.
func newStore(cfg *config.Config) (*checkpoint.Store, error) {
	return checkpoint.New(&checkpoint.Config{Path: cfg.Checkpoint.Path})
}

// newMetrics initializes the metrics registry when enabled.
func newMetrics(cfg *config.Config) *metrics.SyncMetrics {
	if !cfg.Metrics.Enabled {
		return nil
	}
	metrics.InitRegistry()
	return metrics.NewSyncMetrics()
}
