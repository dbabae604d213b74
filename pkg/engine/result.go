package engine

import (
	"time"

	"github.com/netgrove/bamsync/pkg/model"
)

// Result is one operation's recorded outcome.
type Result struct {
	RowID         string
	OperationType model.Action
	ObjectType    model.ObjectType
	Success       bool
	ResourceID    int64
	ErrorKind     string
	ErrorMessage  string
	DurationMS    int64
	Retried       bool
}

// Summary aggregates a session's outcomes in execution order.
type Summary struct {
	SessionID string
	DryRun    bool
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Duration  time.Duration
	Results   []Result
}

// HasFailures reports whether any operation failed outright (skips do
// not count).
func (s *Summary) HasFailures() bool {
	return s.Failed > 0
}

// Clean reports a fully successful run.
func (s *Summary) Clean() bool {
	return s.Failed == 0 && s.Skipped == 0
}
