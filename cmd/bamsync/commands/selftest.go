package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/netgrove/bamsync/internal/cli/output"
)

var selfTestCmd = &cobra.Command{
	Use:   "self-test",
	Short: "Check connectivity and credentials against the server",
	Long: `Authenticate against the configured server and probe the API root.
Useful for verifying a new config file before running apply.`,
	Args: cobra.NoArgs,
	RunE: runSelfTest,
}

func runSelfTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg, false)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	version, err := client.SystemVersion(ctx)
	elapsed := time.Since(start)
	if err != nil {
		return fmt.Errorf("server check failed: %w", err)
	}

	verify := "on"
	if !cfg.Server.VerifySSL {
		verify = "off"
	}
	return output.SimpleTable(os.Stdout, [][2]string{
		{"Server", cfg.Server.URL},
		{"API version", cfg.Server.APIVersion},
		{"TLS verification", verify},
		{"Authentication", "ok"},
		{"Server version", version},
		{"Round trip", elapsed.Round(time.Millisecond).String()},
	})
}
