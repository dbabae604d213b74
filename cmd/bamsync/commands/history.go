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
	historySession string
	historyOutput  string
	historyLimit   int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the per-row changelog of a session",
	Long: `Print every operation a session recorded, in execution order, with
its outcome and the remote resource ID it touched.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historySession, "session", "", "session to inspect (default: the most recent)")
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", "table", "output format: table, json, or yaml")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "show at most this many entries (0 = all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(historyOutput)
	if err != nil {
		return err
	}

	store, err := newStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()

	sessionID := historySession
	if sessionID == "" {
		latest, err := store.LatestAny(ctx)
		if err != nil {
			if errors.Is(err, checkpoint.ErrNoCheckpoint) {
				fmt.Println("no sessions recorded")
				return nil
			}
			return err
		}
		sessionID = latest.SessionID
	}

	entries, err := store.Changelog(ctx, sessionID)
	if err != nil {
		return err
	}
	if historyLimit > 0 && len(entries) > historyLimit {
		entries = entries[:historyLimit]
	}
	if len(entries) == 0 {
		fmt.Printf("session %s has no changelog entries\n", sessionID)
		return nil
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, entries)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, entries)
	}

	table := output.NewTableData("ROW", "ACTION", "TYPE", "OUTCOME", "RESOURCE", "DURATION", "WHEN")
	for _, e := range entries {
		outcome := "ok"
		if !e.Success {
			outcome = e.ErrorKind
		}
		resource := ""
		if e.ResourceID != 0 {
			resource = fmt.Sprintf("%d", e.ResourceID)
		}
		table.AddRow(e.RowID, e.OperationType, e.ObjectType, outcome, resource,
			timeutil.FormatMillis(e.DurationMS),
			timeutil.FormatTime(e.Timestamp.Format(time.RFC3339)))
	}
	return output.PrintTable(os.Stdout, table)
}
