// Package engine executes a plan: it walks the dependency graph's ready
// frontier with a pool of tasks gated by the adaptive throttle, resolves
// deferred parent references from earlier results, applies failure and
// conflict policies, and records progress through the checkpoint store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/netgrove/bamsync/internal/logger"
	"github.com/netgrove/bamsync/pkg/bam"
	"github.com/netgrove/bamsync/pkg/checkpoint"
	"github.com/netgrove/bamsync/pkg/graph"
	"github.com/netgrove/bamsync/pkg/handlers"
	"github.com/netgrove/bamsync/pkg/metrics"
	"github.com/netgrove/bamsync/pkg/model"
	"github.com/netgrove/bamsync/pkg/plan"
	"github.com/netgrove/bamsync/pkg/throttle"
)

// FailurePolicy controls how a failure affects the rest of the batch.
type FailurePolicy string

const (
	// FailFast cancels all outstanding work on the first failure.
	FailFast FailurePolicy = "fail_fast"

	// FailGroup skips only operations transitively dependent on the
	// failure; independent branches continue.
	FailGroup FailurePolicy = "fail_group"

	// Continue records the failure and proceeds everywhere. Dependents
	// of the failed operation are still skipped, since their parent
	// identifiers never materialized.
	Continue FailurePolicy = "continue"
)

// Valid reports whether the policy is one of the known values.
func (p FailurePolicy) Valid() bool {
	switch p {
	case FailFast, FailGroup, Continue:
		return true
	}
	return false
}

// ConflictResolution controls what happens when a create collides with
// an entity born after planning.
type ConflictResolution string

const (
	// ConflictFail records the conflict as a failure.
	ConflictFail ConflictResolution = "fail"

	// ConflictOverwrite rebinds the create to an update of the existing
	// entity, sending the full desired state.
	ConflictOverwrite ConflictResolution = "overwrite"

	// ConflictMerge rebinds to an update carrying only the fields the
	// row sets.
	ConflictMerge ConflictResolution = "merge"

	// ConflictManual fails the operation with a message directing the
	// operator to resolve it.
	ConflictManual ConflictResolution = "manual"
)

// Valid reports whether the resolution is one of the known values.
func (c ConflictResolution) Valid() bool {
	switch c {
	case ConflictFail, ConflictOverwrite, ConflictMerge, ConflictManual:
		return true
	}
	return false
}

// Options tunes one execution session.
type Options struct {
	// SessionID names the session; generated when empty.
	SessionID string

	// DryRun skips handler dispatch and synthesizes deterministic
	// negative resource IDs so dependents still plan end to end.
	DryRun bool

	// FailurePolicy defaults to fail_group.
	FailurePolicy FailurePolicy

	// ConflictResolution defaults to fail.
	ConflictResolution ConflictResolution

	// CheckpointEvery persists progress after this many completions.
	// Default 25.
	CheckpointEvery int

	// CheckpointInterval persists progress at least this often while
	// operations complete. Default 30s.
	CheckpointInterval time.Duration

	// Resume loads the session's changelog and skips operations whose
	// rows already succeeded, while still feeding the graph so their
	// successors become ready.
	Resume bool
}

func (o *Options) applyDefaults() {
	if o.SessionID == "" {
		o.SessionID = uuid.NewString()
	}
	if o.FailurePolicy == "" {
		o.FailurePolicy = FailGroup
	}
	if o.ConflictResolution == "" {
		o.ConflictResolution = ConflictFail
	}
	if o.CheckpointEvery <= 0 {
		o.CheckpointEvery = 25
	}
	if o.CheckpointInterval <= 0 {
		o.CheckpointInterval = 30 * time.Second
	}
}

// Engine drives plan execution. The checkpoint store and metrics are
// optional; a nil store disables persistence and resume.
type Engine struct {
	client   *bam.Client
	planner  *plan.Planner
	throttle *throttle.Throttle
	store    *checkpoint.Store
	metrics  *metrics.SyncMetrics
	opts     Options
}

// New creates an engine.
func New(client *bam.Client, planner *plan.Planner, th *throttle.Throttle, store *checkpoint.Store, m *metrics.SyncMetrics, opts Options) (*Engine, error) {
	opts.applyDefaults()
	if !opts.FailurePolicy.Valid() {
		return nil, fmt.Errorf("unknown failure policy %q", opts.FailurePolicy)
	}
	if !opts.ConflictResolution.Valid() {
		return nil, fmt.Errorf("unknown conflict resolution %q", opts.ConflictResolution)
	}
	if th == nil {
		th = throttle.New(throttle.Config{})
	}
	return &Engine{
		client:   client,
		planner:  planner,
		throttle: th,
		store:    store,
		metrics:  m,
		opts:     opts,
	}, nil
}

// outcome is what a task reports back to the reducer. Tasks work on a
// private copy of the operation; payload and resourceID carry the
// resolved state the reducer folds back in only when the task succeeded.
type outcome struct {
	index      int
	opType     model.Action
	entity     *bam.Entity
	payload    map[string]any
	resourceID int64
	priorState map[string]any
	retried    bool
	duration   time.Duration
	err        error
}

// Run executes the plan and returns the per-operation results. Only the
// reducer goroutine inside Run touches the graph, the results map, and
// operation payloads; tasks communicate through the outcome channel.
func (e *Engine) Run(ctx context.Context, pl *plan.Plan) (*Summary, error) {
	start := time.Now()
	ops := pl.Operations

	byRow := make(map[string]int, len(ops))
	for i := range ops {
		byRow[ops[i].RowID] = i
	}

	g := graph.New()
	for i := range ops {
		g.AddNode(i)
	}
	for i := range ops {
		for _, dep := range ops[i].DependsOn {
			producer, ok := byRow[dep]
			if !ok {
				return nil, fmt.Errorf("operation %s depends on unknown row %s", ops[i].RowID, dep)
			}
			if err := g.AddEdge(producer, i); err != nil {
				return nil, err
			}
		}
	}
	if err := g.Build(); err != nil {
		return nil, err
	}

	doneRows, err := e.loadResumeState(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		SessionID: e.opts.SessionID,
		DryRun:    e.opts.DryRun,
		Total:     len(ops),
	}

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	group, taskCtx := errgroup.WithContext(workerCtx)

	var (
		outcomes    = make(chan outcome)
		resourceIDs = make(map[string]int64) // rowID → created/bound ID
		skipMarks   = make(map[int]skipMark)
		processed   = 0
		stopping    = false
		changelog   []checkpoint.ChangelogEntry
		lastSave    = time.Now()
		sinceSave   = 0
	)

	record := func(res Result, prior map[string]any) {
		summary.Results = append(summary.Results, res)
		switch {
		case res.Success:
			summary.Succeeded++
		case res.ErrorKind == errKindSkipped || res.ErrorKind == errKindUpstream:
			summary.Skipped++
		default:
			summary.Failed++
		}
		entry := checkpoint.ChangelogEntry{
			SessionID:     e.opts.SessionID,
			RowID:         res.RowID,
			OperationType: string(res.OperationType),
			ObjectType:    string(res.ObjectType),
			ResourceID:    res.ResourceID,
			Success:       res.Success,
			ErrorKind:     res.ErrorKind,
			ErrorMessage:  res.ErrorMessage,
			DurationMS:    res.DurationMS,
			Retried:       res.Retried,
		}
		if prior != nil {
			_ = entry.SetPriorState(prior)
		}
		changelog = append(changelog, entry)
		e.metrics.RecordOperation(string(res.OperationType), string(res.ObjectType), outcomeLabel(res), time.Duration(res.DurationMS)*time.Millisecond)
	}

	persist := func(final bool, status checkpoint.Status) {
		if e.store == nil {
			return
		}
		sinceSave++
		if !final && sinceSave < e.opts.CheckpointEvery && time.Since(lastSave) < e.opts.CheckpointInterval {
			return
		}
		cp := &checkpoint.Checkpoint{
			SessionID:           e.opts.SessionID,
			BatchID:             len(summary.Results) / e.opts.CheckpointEvery,
			OperationIndex:      processed,
			TotalOperations:     len(ops),
			CompletedOperations: summary.Succeeded,
			Status:              string(status),
		}
		_ = cp.SetMetadata(map[string]any{
			"dry_run": e.opts.DryRun,
			"failed":  summary.Failed,
			"skipped": summary.Skipped,
		})
		// Persistence must survive a cancelled run context; the store is
		// local, so an unbounded context is fine.
		pctx := context.Background()
		if err := e.store.Save(pctx, cp); err != nil {
			logger.Warn("failed to persist checkpoint", "session", e.opts.SessionID, "error", err)
		}
		if err := e.store.AppendChangelog(pctx, changelog); err != nil {
			logger.Warn("failed to append changelog", "session", e.opts.SessionID, "error", err)
		}
		changelog = changelog[:0]
		lastSave = time.Now()
		sinceSave = 0
	}

	markSkipped := func(indices []int, kind, reason string) {
		for _, idx := range indices {
			if _, ok := skipMarks[idx]; !ok {
				skipMarks[idx] = skipMark{kind: kind, reason: reason}
			}
		}
	}

	queue := g.Ready()

	// process consumes one ready node: completes it inline when nothing
	// needs dispatching, otherwise hands it to a task.
	process := func(idx int) {
		op := &ops[idx]

		if id, ok := doneRows[op.RowID]; ok {
			resourceIDs[op.RowID] = id
			op.ResourceID = id
			processed++
			record(Result{
				RowID:         op.RowID,
				OperationType: op.Type,
				ObjectType:    op.ObjectType,
				Success:       true,
				ResourceID:    id,
			}, nil)
			queue = append(queue, g.Complete(idx)...)
			return
		}

		if mark, ok := skipMarks[idx]; ok || stopping {
			if !ok {
				mark = skipMark{kind: errKindSkipped, reason: "execution stopped before this operation was dispatched"}
			}
			processed++
			record(Result{
				RowID:         op.RowID,
				OperationType: op.Type,
				ObjectType:    op.ObjectType,
				ErrorKind:     mark.kind,
				ErrorMessage:  mark.reason,
			}, nil)
			markSkipped(g.Dependents(idx), mark.kind, "an upstream dependency was skipped")
			queue = append(queue, g.Complete(idx)...)
			return
		}

		resolved, err := e.resolveDeferred(op, resourceIDs)
		if err != nil {
			processed++
			record(Result{
				RowID:         op.RowID,
				OperationType: op.Type,
				ObjectType:    op.ObjectType,
				ErrorKind:     errKindUpstream,
				ErrorMessage:  err.Error(),
			}, nil)
			markSkipped(g.Dependents(idx), errKindUpstream, "an upstream dependency was skipped")
			queue = append(queue, g.Complete(idx)...)
			return
		}

		if e.opts.DryRun {
			id := op.ResourceID
			if op.Type == model.ActionCreate {
				id = -int64(op.Index + 1)
			}
			resourceIDs[op.RowID] = id
			op.ResourceID = id
			op.Payload = resolved
			op.Deferred = nil
			processed++
			record(Result{
				RowID:         op.RowID,
				OperationType: op.Type,
				ObjectType:    op.ObjectType,
				Success:       true,
				ResourceID:    id,
			}, nil)
			queue = append(queue, g.Complete(idx)...)
			return
		}

		group.Go(func() error {
			outcomes <- e.execute(taskCtx, op, resolved)
			return nil
		})
	}

	handleOutcome := func(out outcome) {
		op := &ops[out.index]
		processed++

		res := Result{
			RowID:         op.RowID,
			OperationType: out.opType,
			ObjectType:    op.ObjectType,
			DurationMS:    out.duration.Milliseconds(),
			Retried:       out.retried,
		}

		if out.err == nil {
			res.Success = true
			id := out.resourceID
			if out.entity != nil && out.entity.ID != 0 {
				id = out.entity.ID
			}
			res.ResourceID = id
			// The shared operation mutates only on success; a failed
			// operation keeps its pre-execution payload and bindings.
			op.Type = out.opType
			op.ResourceID = id
			op.Payload = out.payload
			op.Deferred = nil
			resourceIDs[op.RowID] = id
		} else if errors.Is(out.err, context.Canceled) {
			// The task was torn down, not rejected by the server.
			res.ErrorKind = errKindSkipped
			res.ErrorMessage = "cancelled before completion"
		} else {
			res.ErrorKind = string(bam.Kind(out.err))
			if res.ErrorKind == "" {
				res.ErrorKind = "fatal"
			}
			res.ErrorMessage = out.err.Error()

			if e.opts.FailurePolicy == FailFast && !stopping {
				stopping = true
				cancelWorkers()
			}
			// Dependents carry the upstream-failure kind under every
			// policy; only they are poisoned by this failure.
			markSkipped(g.Dependents(out.index), errKindUpstream, fmt.Sprintf("upstream operation %s failed", op.RowID))
		}

		record(res, out.priorState)
		persist(false, checkpoint.StatusInProgress)
		queue = append(queue, g.Complete(out.index)...)
	}

	userCancelled := false
	done := ctx.Done()
	for processed < len(ops) {
		for len(queue) > 0 {
			idx := queue[0]
			queue = queue[1:]
			process(idx)
		}
		if processed >= len(ops) {
			break
		}

		select {
		case out := <-outcomes:
			handleOutcome(out)
		case <-done:
			done = nil
			userCancelled = true
			stopping = true
			cancelWorkers()
		}
	}

	// Every dispatched task's outcome was consumed above, so this only
	// waits for deferred Releases to run.
	_ = group.Wait()

	summary.Duration = time.Since(start)

	finalStatus := checkpoint.StatusCompleted
	if summary.Failed > 0 || summary.Skipped > 0 {
		finalStatus = checkpoint.StatusFailed
	}
	persist(true, finalStatus)

	logger.Info("execution finished",
		"session", e.opts.SessionID,
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"dry_run", e.opts.DryRun,
		"duration", summary.Duration.String())

	if userCancelled {
		return summary, ctx.Err()
	}
	return summary, nil
}

// Error kinds for operations that never reached the server.
// errKindSkipped covers cancellation and execution stops;
// errKindUpstream covers operations poisoned by a failed or skipped
// dependency.
const (
	errKindSkipped  = "skipped"
	errKindUpstream = string(bam.KindUpstreamFailure)
)

// skipMark is the reducer's note that an operation must not dispatch,
// and what its result record should say.
type skipMark struct {
	kind   string
	reason string
}

func outcomeLabel(res Result) string {
	switch {
	case res.Success:
		return "success"
	case res.ErrorKind == errKindSkipped || res.ErrorKind == errKindUpstream:
		return "skipped"
	default:
		return "failure"
	}
}

// resolveDeferred returns the payload with deferred-reference sentinels
// replaced by the resource IDs their producers created. The operation
// itself is not touched; substitution happens on a copy so a failed
// dispatch leaves the recorded payload at its pre-execution value.
// Producers are guaranteed complete by the graph; a missing ID means
// the producer was skipped.
func (e *Engine) resolveDeferred(op *plan.Operation, resourceIDs map[string]int64) (map[string]any, error) {
	if len(op.Deferred) == 0 {
		return op.Payload, nil
	}
	resolved := make(map[string]any, len(op.Payload))
	for k, v := range op.Payload {
		resolved[k] = v
	}
	for key, producer := range op.Deferred {
		id, ok := resourceIDs[producer]
		if !ok {
			return nil, fmt.Errorf("producer row %s finished without a resource id", producer)
		}
		field, ok := plan.DeferredField(key)
		if !ok {
			return nil, fmt.Errorf("malformed deferred key %q", key)
		}
		resolved[field] = id
		delete(resolved, key)
	}
	return resolved, nil
}

// loadResumeState returns the rows already applied by a previous run of
// this session.
func (e *Engine) loadResumeState(ctx context.Context) (map[string]int64, error) {
	if !e.opts.Resume {
		return nil, nil
	}
	if e.store == nil {
		return nil, fmt.Errorf("resume requested without a checkpoint store")
	}
	if _, err := e.store.Latest(ctx, e.opts.SessionID); err != nil {
		if errors.Is(err, checkpoint.ErrNoCheckpoint) {
			return nil, nil
		}
		return nil, err
	}
	entries, err := e.store.SuccessfulEntries(ctx, e.opts.SessionID)
	if err != nil {
		return nil, err
	}
	done := make(map[string]int64, len(entries))
	for _, entry := range entries {
		done[entry.RowID] = entry.ResourceID
	}
	logger.Info("resuming session",
		"session", e.opts.SessionID, "already_applied", len(done))
	return done, nil
}

// execute runs one operation's lifecycle inside a task: throttle slot,
// prior-state snapshot, handler dispatch, conflict rebinding, throttle
// feedback. The shared operation is never written here; the task works
// on a private copy carrying the resolved payload, and the outcome
// reports what the reducer should fold back in on success.
func (e *Engine) execute(ctx context.Context, op *plan.Operation, payload map[string]any) outcome {
	task := *op
	task.Payload = payload
	task.Deferred = nil

	out := outcome{index: op.Index, opType: op.Type, payload: payload, resourceID: op.ResourceID}

	if err := e.throttle.Acquire(ctx); err != nil {
		out.err = err
		return out
	}
	defer e.throttle.Release()
	e.metrics.TaskStarted()
	defer e.metrics.TaskFinished()
	e.metrics.RecordThrottleLimit(e.throttle.Limit())

	h, err := handlers.Lookup(task.ObjectType)
	if err != nil {
		out.err = err
		return out
	}

	rctx, retries := bam.WithRetryCounter(ctx)
	start := time.Now()

	if task.Type != model.ActionCreate && task.ResourceID != 0 {
		out.priorState = e.snapshot(rctx, &task)
	}

	var entity *bam.Entity
	switch task.Type {
	case model.ActionCreate:
		entity, err = h.Create(rctx, e.client, &task)
		if err != nil && bam.Kind(err) == bam.KindConflict {
			entity, out.opType, err = e.resolveConflict(rctx, h, &task, &out)
		}
	case model.ActionUpdate:
		entity, err = h.Update(rctx, e.client, &task)
	case model.ActionDelete:
		err = h.Delete(rctx, e.client, &task)
	default:
		err = fmt.Errorf("unknown operation type %q", task.Type)
	}

	out.duration = time.Since(start)
	out.retried = retries.Load() > 0
	out.entity = entity
	out.err = err

	if out.retried {
		e.metrics.RecordRetry()
	}
	if err == nil {
		e.throttle.RecordSuccess(out.duration)
	} else {
		e.throttle.RecordFailure(bam.Kind(err) == bam.KindRateLimited)
	}
	return out
}

// resolveConflict applies the conflict policy to a create that hit an
// existing entity. The task copy is rebound in place; the outcome's
// resourceID tells the reducer where the operation landed.
func (e *Engine) resolveConflict(ctx context.Context, h handlers.Handler, task *plan.Operation, out *outcome) (*bam.Entity, model.Action, error) {
	switch e.opts.ConflictResolution {
	case ConflictOverwrite, ConflictMerge:
		id, err := e.planner.LocateExisting(ctx, task)
		if err != nil {
			return nil, task.Type, fmt.Errorf("conflict on %s, lookup of existing entity failed: %w", task.RowID, err)
		}
		logger.Debug("rebinding conflicted create to update",
			"row", task.RowID, "resource_id", id, "policy", string(e.opts.ConflictResolution))
		task.ResourceID = id
		out.resourceID = id
		out.priorState = e.snapshot(ctx, task)
		entity, err := h.Update(ctx, e.client, task)
		return entity, model.ActionUpdate, err

	case ConflictManual:
		return nil, task.Type, fmt.Errorf("row %s conflicts with an existing entity; conflict resolution is manual, resolve it and re-run", task.RowID)
	}
	return nil, task.Type, fmt.Errorf("row %s conflicts with an existing entity: %w", task.RowID,
		&bam.APIError{Kind: bam.KindConflict, Message: "target already exists"})
}

// snapshot captures the remote entity's current identity fields so the
// rollback generator can restore them. Best effort; kinds without a
// standalone collection are skipped.
func (e *Engine) snapshot(ctx context.Context, op *plan.Operation) map[string]any {
	collection := handlers.Collection(op.ObjectType)
	if collection == "" || op.ResourceID == 0 {
		return nil
	}
	entity, err := e.client.GetByID(ctx, collection, op.ResourceID)
	if err != nil {
		logger.Debug("prior-state snapshot unavailable",
			"row", op.RowID, "resource_id", op.ResourceID, "error", err)
		return nil
	}
	state := map[string]any{"type": entity.Type}
	if entity.Name != "" {
		state["name"] = entity.Name
	}
	if entity.Range != "" {
		state["range"] = entity.Range
	}
	if entity.Address != "" {
		state["address"] = entity.Address
	}
	if entity.AbsoluteName != "" {
		state["absoluteName"] = entity.AbsoluteName
	}
	if len(entity.Properties) > 0 {
		state["properties"] = entity.Properties
	}
	return state
}
