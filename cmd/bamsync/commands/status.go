package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/netgrove/bamsync/internal/cli/output"
	"github.com/netgrove/bamsync/internal/cli/timeutil"
	"github.com/netgrove/bamsync/pkg/checkpoint"
)

var (
	statusSession string
	statusOutput  string
	statusAll     bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the progress of the most recent or a named session",
	Long: `Show the latest checkpoint of a session: how many operations were
planned, completed, and whether the run finished cleanly. With --all,
list recent sessions instead.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusSession, "session", "", "session to inspect (default: the most recent)")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "output format: table, json, or yaml")
	statusCmd.Flags().BoolVar(&statusAll, "all", false, "list recent sessions instead of one checkpoint")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	store, err := newStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()

	if statusAll {
		return printSessions(ctx, store, format)
	}

	var cp *checkpoint.Checkpoint
	if statusSession != "" {
		cp, err = store.Latest(ctx, statusSession)
	} else {
		cp, err = store.LatestAny(ctx)
	}
	if err != nil {
		if errors.Is(err, checkpoint.ErrNoCheckpoint) {
			fmt.Println("no sessions recorded")
			return nil
		}
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, cp)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, cp)
	default:
		return printCheckpointTable(cp)
	}
}

func printCheckpointTable(cp *checkpoint.Checkpoint) error {
	rows := [][2]string{
		{"Session", cp.SessionID},
		{"Status", cp.Status},
		{"Progress", fmt.Sprintf("%d/%d operations", cp.CompletedOperations, cp.TotalOperations)},
		{"Batch", fmt.Sprintf("%d", cp.BatchID)},
		{"Updated", timeutil.FormatTime(cp.Timestamp.Format(time.RFC3339))},
	}
	if meta, err := cp.GetMetadata(); err == nil && meta != nil {
		if v, ok := meta["dry_run"].(bool); ok && v {
			rows = append(rows, [2]string{"Mode", "dry run"})
		}
		if v, ok := meta["failed"].(float64); ok && v > 0 {
			rows = append(rows, [2]string{"Failed", fmt.Sprintf("%.0f", v)})
		}
		if v, ok := meta["skipped"].(float64); ok && v > 0 {
			rows = append(rows, [2]string{"Skipped", fmt.Sprintf("%.0f", v)})
		}
	}
	return output.SimpleTable(os.Stdout, rows)
}

func printSessions(ctx context.Context, store *checkpoint.Store, format output.Format) error {
	sessions, err := store.Sessions(ctx, 50)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions recorded")
		return nil
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, sessions)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, sessions)
	}

	table := output.NewTableData("SESSION", "STATUS", "PROGRESS", "UPDATED")
	for _, id := range sessions {
		cp, err := store.Latest(ctx, id)
		if err != nil {
			continue
		}
		table.AddRow(id, cp.Status,
			fmt.Sprintf("%d/%d", cp.CompletedOperations, cp.TotalOperations),
			timeutil.FormatTime(cp.Timestamp.Format(time.RFC3339)))
	}
	return output.PrintTable(os.Stdout, table)
}
