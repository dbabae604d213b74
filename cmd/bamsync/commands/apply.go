package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/netgrove/bamsync/internal/cli/output"
	"github.com/netgrove/bamsync/internal/cli/prompt"
	"github.com/netgrove/bamsync/internal/logger"
	"github.com/netgrove/bamsync/pkg/checkpoint"
	"github.com/netgrove/bamsync/pkg/config"
	"github.com/netgrove/bamsync/pkg/engine"
	"github.com/netgrove/bamsync/pkg/metrics"
	"github.com/netgrove/bamsync/pkg/model"
	"github.com/netgrove/bamsync/pkg/parser"
	"github.com/netgrove/bamsync/pkg/plan"
	"github.com/netgrove/bamsync/pkg/throttle"
)

var (
	applyDryRun    bool
	applyYes       bool
	applyStrict    bool
	applyNoCache   bool
	applyResume    bool
	applyDangerous bool
	applySession   string
	applyPolicy    string
	applyConflict  string
	applyMode      string
)

var applyCmd = &cobra.Command{
	Use:   "apply <file>",
	Short: "Plan and execute a CSV file against the server",
	Long: `Parse the CSV file, diff every row against the live server, order the
resulting operations by dependency, and execute them concurrently.
Progress is checkpointed so an interrupted run can be resumed with
--resume --session <id>.

Examples:
  # Preview without touching the server
  bamsync apply --dry-run changes.csv

  # Apply with per-branch failure isolation (the default policy)
  bamsync apply changes.csv

  # Resume an interrupted session
  bamsync apply --resume --session 2f1c... changes.csv

  # Deleting configurations, views, blocks, networks, or zones
  bamsync apply --allow-dangerous-operations deletions.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "plan and simulate without sending writes")
	applyCmd.Flags().BoolVarP(&applyYes, "yes", "y", false, "skip the confirmation prompt")
	applyCmd.Flags().BoolVar(&applyStrict, "strict", false, "fail on any validation error instead of dropping bad rows")
	applyCmd.Flags().BoolVar(&applyNoCache, "no-cache", false, "bypass the resolver cache for this run")
	applyCmd.Flags().BoolVar(&applyResume, "resume", false, "skip rows already applied by a previous run of this session")
	applyCmd.Flags().BoolVar(&applyDangerous, "allow-dangerous-operations", false, "permit deletion of configurations, views, blocks, networks, and zones")
	applyCmd.Flags().StringVar(&applySession, "session", "", "session ID (generated when empty; required with --resume)")
	applyCmd.Flags().StringVar(&applyPolicy, "failure-policy", "", "fail_fast, fail_group, or continue (default from config)")
	applyCmd.Flags().StringVar(&applyConflict, "conflict-resolution", "", "fail, overwrite, merge, or manual (default from config)")
	applyCmd.Flags().StringVar(&applyMode, "update-mode", "", "create_only, upsert, or update_only (default from config)")
}

func runApply(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg)

	rows, err := parseInput(args[0], applyStrict)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("nothing to do: the file has no valid rows")
		return nil
	}

	client, err := newClient(cfg, applyDangerous)
	if err != nil {
		return err
	}
	m := newMetrics(cfg)
	stopMetrics := serveMetrics(cfg)
	defer stopMetrics()

	res := newResolver(cfg, client, applyNoCache, m)
	defer func() { _ = res.Close() }()

	planner, err := plan.New(client, res, plan.UpdateMode(cfg.Execution.UpdateMode))
	if err != nil {
		return err
	}

	store, err := newStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessionID := applySession
	if applyResume && sessionID == "" {
		latest, err := store.LatestAny(ctx)
		if err != nil {
			if errors.Is(err, checkpoint.ErrNoCheckpoint) {
				return fmt.Errorf("nothing to resume: no checkpointed sessions exist")
			}
			return err
		}
		sessionID = latest.SessionID
		fmt.Printf("resuming most recent session %s\n", sessionID)
	}

	fmt.Printf("planning %d rows...\n", len(rows))
	pl, err := planner.Build(ctx, derefRows(rows))
	if err != nil {
		return err
	}
	printPlanSummary(pl)
	if len(pl.Errors) > 0 {
		return partialf("%d rows could not be planned", len(pl.Errors))
	}
	if len(pl.Operations) == 0 {
		fmt.Println("nothing to do: the server already matches the file")
		return nil
	}

	if err := confirmApply(pl); err != nil {
		return err
	}

	eng, err := engine.New(client, planner, newThrottle(cfg), store, m, engine.Options{
		SessionID:          sessionID,
		DryRun:             applyDryRun,
		FailurePolicy:      engine.FailurePolicy(cfg.Execution.FailurePolicy),
		ConflictResolution: engine.ConflictResolution(cfg.Execution.ConflictResolution),
		CheckpointEvery:    cfg.Execution.CheckpointEvery,
		CheckpointInterval: cfg.Execution.CheckpointInterval,
		Resume:             applyResume,
	})
	if err != nil {
		return err
	}

	summary, runErr := eng.Run(ctx, pl)
	if summary == nil {
		return runErr
	}
	printSummary(summary)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if runErr != nil {
		return partialf("interrupted; resume with: bamsync apply --resume --session %s %s", summary.SessionID, args[0])
	}
	if !summary.Clean() {
		return partialf("%d failed, %d skipped of %d operations (session %s)",
			summary.Failed, summary.Skipped, summary.Total, summary.SessionID)
	}
	return nil
}

// applyFlagOverrides lets per-run flags win over the config file.
func applyFlagOverrides(cfg *config.Config) {
	if applyPolicy != "" {
		cfg.Execution.FailurePolicy = applyPolicy
	}
	if applyConflict != "" {
		cfg.Execution.ConflictResolution = applyConflict
	}
	if applyMode != "" {
		cfg.Execution.UpdateMode = applyMode
	}
}

// parseInput parses the CSV and reports validation problems the way the
// validate command does.
func parseInput(path string, strict bool) ([]*model.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	result, err := parser.Parse(f, parser.Options{Strict: strict})
	if err != nil {
		if errors.Is(err, parser.ErrStrictValidation) {
			for _, ve := range result.Errors {
				fmt.Fprintf(os.Stderr, "error: %s\n", ve.Error())
			}
		}
		return nil, err
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	for _, ve := range result.Errors {
		fmt.Fprintf(os.Stderr, "warning: dropped %s\n", ve.Error())
	}
	return result.Rows, nil
}

func derefRows(rows []*model.Row) []model.Row {
	out := make([]model.Row, len(rows))
	for i, r := range rows {
		out[i] = *r
	}
	return out
}

func newThrottle(cfg *config.Config) *throttle.Throttle {
	return throttle.New(throttle.Config{
		Initial: cfg.Execution.InitialConcurrency,
		Min:     cfg.Execution.MinConcurrency,
		Max:     cfg.Execution.MaxConcurrency,
	})
}

// serveMetrics exposes /metrics when enabled. The returned func shuts
// the listener down.
func serveMetrics(cfg *config.Config) func() {
	handler := metrics.Handler()
	if handler == nil {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()
	logger.Info("metrics server listening", "port", cfg.Metrics.Port)
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

// confirmApply summarizes what is about to happen and asks for
// confirmation; protected-kind deletions require typing "delete".
func confirmApply(pl *plan.Plan) error {
	if applyDryRun {
		return nil
	}

	var protected int
	for i := range pl.Operations {
		op := &pl.Operations[i]
		if op.Type == model.ActionDelete && op.ObjectType.Protected() {
			protected++
		}
	}
	if protected > 0 {
		if !applyDangerous {
			return fmt.Errorf("the plan deletes %d protected objects (configurations, views, blocks, networks, or zones); re-run with --allow-dangerous-operations", protected)
		}
		if !applyYes {
			ok, err := prompt.ConfirmDanger(
				fmt.Sprintf("This will delete %d protected objects", protected), "delete")
			if err != nil || !ok {
				return fmt.Errorf("aborted")
			}
		}
		return nil
	}

	ok, err := prompt.ConfirmWithForce(
		fmt.Sprintf("Apply %d operations", len(pl.Operations)), applyYes)
	if err != nil || !ok {
		return fmt.Errorf("aborted")
	}
	return nil
}

func printPlanSummary(pl *plan.Plan) {
	var creates, updates, deletes int
	for i := range pl.Operations {
		switch pl.Operations[i].Type {
		case model.ActionCreate:
			creates++
		case model.ActionUpdate:
			updates++
		case model.ActionDelete:
			deletes++
		}
	}
	fmt.Printf("plan: %d to create, %d to update, %d to delete, %d in sync\n",
		creates, updates, deletes, len(pl.Skipped))
	for _, e := range pl.Errors {
		fmt.Fprintf(os.Stderr, "error: row %s: %v\n", e.RowID, e.Err)
	}
}

func printSummary(s *engine.Summary) {
	label := "applied"
	if s.DryRun {
		label = "simulated"
	}
	fmt.Printf("\n%s %d operations in %s: %d succeeded, %d failed, %d skipped\n",
		label, s.Total, s.Duration.Round(time.Millisecond), s.Succeeded, s.Failed, s.Skipped)
	fmt.Printf("session: %s\n", s.SessionID)

	var problems [][]string
	for _, r := range s.Results {
		if !r.Success {
			problems = append(problems, []string{r.RowID, string(r.OperationType), string(r.ObjectType), r.ErrorKind, r.ErrorMessage})
		}
	}
	if len(problems) > 0 {
		fmt.Println()
		table := output.NewTableData("ROW", "ACTION", "TYPE", "KIND", "ERROR")
		for _, p := range problems {
			table.AddRow(p...)
		}
		_ = output.PrintTable(os.Stdout, table)
	}
}
