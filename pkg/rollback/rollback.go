// Package rollback derives a compensating plan from a session's
// changelog: the inverse of every successfully applied operation, in
// reverse execution order, written in the same CSV dialect the parser
// reads so the result feeds straight back into apply.
package rollback

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/netgrove/bamsync/internal/logger"
	"github.com/netgrove/bamsync/pkg/checkpoint"
	"github.com/netgrove/bamsync/pkg/model"
	"github.com/netgrove/bamsync/pkg/parser"
)

// Generator builds inverse plans from the checkpoint store.
type Generator struct {
	store *checkpoint.Store
}

// New creates a generator backed by the given store.
func New(store *checkpoint.Store) *Generator {
	return &Generator{store: store}
}

// Plan is a generated rollback plan.
type Plan struct {
	SessionID string
	Rows      []*model.Row

	// Skipped lists rows whose inverse cannot be expressed, with the
	// reason. They need operator attention.
	Skipped []SkippedRow
}

// SkippedRow records an operation the rollback plan cannot compensate.
type SkippedRow struct {
	RowID  string
	Reason string
}

// Generate builds the inverse plan for a session. Original rows are
// required because changelog entries carry identity only through the
// row they executed; rows absent from the index are skipped with a
// warning.
func (g *Generator) Generate(ctx context.Context, sessionID string, rows []*model.Row) (*Plan, error) {
	entries, err := g.store.SuccessfulEntries(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load changelog for session %s: %w", sessionID, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("session %s has no successfully applied operations to roll back", sessionID)
	}

	byRow := make(map[string]*model.Row, len(rows))
	for _, row := range rows {
		byRow[row.RowID] = row
	}

	pl := &Plan{SessionID: sessionID}

	// Compensations apply in reverse: the last change undone first, so
	// children disappear before the parents they depend on.
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		row, ok := byRow[entry.RowID]
		if !ok {
			pl.skip(entry.RowID, "original row not found in the input file")
			continue
		}
		inverse, reason := invert(row, &entry)
		if inverse == nil {
			pl.skip(entry.RowID, reason)
			continue
		}
		pl.Rows = append(pl.Rows, inverse)
	}
	return pl, nil
}

func (pl *Plan) skip(rowID, reason string) {
	logger.Warn("cannot compensate operation",
		"session", pl.SessionID, "row", rowID, "reason", reason)
	pl.Skipped = append(pl.Skipped, SkippedRow{RowID: rowID, Reason: reason})
}

// invert builds the compensating row, or returns a reason when the
// operation has no expressible inverse.
func invert(row *model.Row, entry *checkpoint.ChangelogEntry) (*model.Row, string) {
	action := model.Action(entry.OperationType)

	switch action {
	case model.ActionCreate:
		out := row.Clone()
		out.Action = model.ActionDelete
		return out, ""

	case model.ActionUpdate:
		prior, err := entry.GetPriorState()
		if err != nil || len(prior) == 0 {
			return nil, "no prior state was captured for the update"
		}
		out := row.Clone()
		out.Action = model.ActionUpdate
		restoreFields(out, prior)
		return out, ""

	case model.ActionDelete:
		if row.ObjectType == model.TypeResourceTag {
			// Tag membership offers no read-back of the removed link;
			// the original row is the only record and recreating from
			// it is the operator's call.
			return nil, "deleted tag assignments cannot be restored automatically"
		}
		out := row.Clone()
		out.Action = model.ActionCreate
		prior, err := entry.GetPriorState()
		if err == nil && len(prior) > 0 {
			restoreFields(out, prior)
		}
		return out, ""
	}
	return nil, fmt.Sprintf("unknown operation type %q", entry.OperationType)
}

// restoreFields maps a prior-state snapshot back onto CSV field names.
// Only mutable fields are overwritten; identity fields keep the row's
// values so the compensating row addresses the same entity.
func restoreFields(row *model.Row, prior map[string]any) {
	if name, ok := prior["name"].(string); ok && name != "" {
		row.Fields["name"] = name
	}
	props, _ := prior["properties"].(map[string]any)
	for key, value := range props {
		if _, structural := row.Fields[key]; structural || propertyField(key) {
			row.Fields[key] = fmt.Sprint(value)
		}
	}
}

// propertyField reports whether a snapshot property maps to a known
// mutable CSV column. Unknown server properties are dropped rather than
// invented as columns the parser would reject.
func propertyField(key string) bool {
	switch key {
	case "description", "ttl", "comment", "priority", "weight", "port", "text":
		return true
	}
	return false
}

// Write renders the plan as CSV through the shared row writer, with a
// provenance header.
func (pl *Plan) Write(w io.Writer) error {
	comments := []string{
		fmt.Sprintf("rollback plan for session %s", pl.SessionID),
		fmt.Sprintf("generated %s", time.Now().UTC().Format(time.RFC3339)),
		fmt.Sprintf("%d compensating rows, %d skipped", len(pl.Rows), len(pl.Skipped)),
	}
	for _, s := range pl.Skipped {
		comments = append(comments, fmt.Sprintf("skipped %s: %s", s.RowID, s.Reason))
	}
	return parser.WriteRows(w, pl.Rows, comments)
}
