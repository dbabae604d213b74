package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/netgrove/bamsync/pkg/checkpoint"
	"github.com/netgrove/bamsync/pkg/rollback"
)

var (
	rollbackSession string
	rollbackOut     string
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <file>",
	Short: "Generate a compensating CSV for a previous session",
	Long: `Read the changelog of a previous apply session and emit a CSV that
undoes its successfully applied operations: creates become deletes,
deletes become creates, and updates restore the captured prior state.
Operations run in reverse order so dependents are removed before their
parents.

The file argument is the original input CSV; it supplies the field
values the changelog does not carry. The generated plan is written to
stdout unless --out is given, and is applied like any other file:

  bamsync rollback --session 2f1c... changes.csv --out undo.csv
  bamsync apply undo.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runRollback,
}

func init() {
	rollbackCmd.Flags().StringVar(&rollbackSession, "session", "", "session to roll back (default: the most recent)")
	rollbackCmd.Flags().StringVar(&rollbackOut, "out", "", "write the plan to this file instead of stdout")
}

func runRollback(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := newStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()

	sessionID := rollbackSession
	if sessionID == "" {
		latest, err := store.LatestAny(ctx)
		if err != nil {
			if errors.Is(err, checkpoint.ErrNoCheckpoint) {
				return fmt.Errorf("no checkpointed sessions exist; nothing to roll back")
			}
			return err
		}
		sessionID = latest.SessionID
	}

	rows, err := parseInput(args[0], false)
	if err != nil {
		return err
	}

	plan, err := rollback.New(store).Generate(ctx, sessionID, rows)
	if err != nil {
		return err
	}

	out := os.Stdout
	if rollbackOut != "" {
		f, err := os.Create(rollbackOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", rollbackOut, err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}
	if err := plan.Write(out); err != nil {
		return err
	}

	if rollbackOut != "" {
		fmt.Printf("wrote %d rollback rows to %s", len(plan.Rows), rollbackOut)
		if len(plan.Skipped) > 0 {
			fmt.Printf(" (%d operations could not be inverted; see the file comments)", len(plan.Skipped))
		}
		fmt.Println()
	}
	return nil
}
