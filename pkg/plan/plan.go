// Package plan turns parsed rows into an ordered, dependency-annotated
// operation list. The planner is deterministic: the same rows, resolver
// state, and remote state always yield the same plan.
package plan

import (
	"fmt"
	"strings"

	"github.com/netgrove/bamsync/pkg/model"
)

// UpdateMode controls how a create row meets an existing remote entity.
type UpdateMode string

const (
	// CreateOnly fails the row when the target already exists.
	CreateOnly UpdateMode = "create_only"

	// Upsert turns the create into an update.
	Upsert UpdateMode = "upsert"

	// UpdateOnly also turns the create into an update; unlike Upsert it
	// is chosen by operators who expect every target to exist already.
	UpdateOnly UpdateMode = "update_only"
)

// Valid reports whether the mode is a known value.
func (m UpdateMode) Valid() bool {
	switch m {
	case CreateOnly, Upsert, UpdateOnly:
		return true
	}
	return false
}

// Operation is the planner's unit of work. A create carries no
// ResourceID; updates and deletes carry one when the planner could bind
// it, or zero for kinds whose identity the handler resolves at
// execution time.
type Operation struct {
	Index      int
	RowID      string
	Type       model.Action
	ObjectType model.ObjectType
	ResourceID int64
	Payload    map[string]any

	// DependsOn lists producer row IDs that must complete first.
	DependsOn []string

	// Deferred maps a deferred payload key to the producer row whose
	// resulting resource ID replaces it. The payload holds the
	// human-readable identity under the same key until resolution.
	Deferred map[string]string
}

// Skipped records a row the planner dropped as a no-op.
type Skipped struct {
	RowID  string
	Reason string
}

// RowError is a planning failure scoped to one row.
type RowError struct {
	RowID string
	Err   error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %s: %v", e.RowID, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// Plan is the planner output. Operations keep input order; dependency
// ordering is enforced later by the graph, not by list position.
type Plan struct {
	Operations []Operation
	Skipped    []Skipped
	Errors     []RowError
}

// deferredPrefix marks payload keys awaiting a producer's resource ID.
const deferredPrefix = "_deferred_"

// DeferredKey returns the payload key for a deferred ID field, e.g.
// DeferredKey("block_id") == "_deferred_block_id".
func DeferredKey(field string) string {
	return deferredPrefix + field
}

// DeferredField extracts the target field from a deferred payload key.
func DeferredField(key string) (string, bool) {
	if !strings.HasPrefix(key, deferredPrefix) {
		return "", false
	}
	return strings.TrimPrefix(key, deferredPrefix), true
}

// addDeferred wires a deferred parent reference into the operation:
// payload sentinel, producer dependency, and resolution bookkeeping.
func (op *Operation) addDeferred(field, identity, producer string) {
	key := DeferredKey(field)
	op.Payload[key] = identity
	if op.Deferred == nil {
		op.Deferred = make(map[string]string)
	}
	op.Deferred[key] = producer
	op.dependOn(producer)
}

func (op *Operation) dependOn(producer string) {
	for _, existing := range op.DependsOn {
		if existing == producer {
			return
		}
	}
	op.DependsOn = append(op.DependsOn, producer)
}
