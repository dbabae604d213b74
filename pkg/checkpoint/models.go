package checkpoint

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a sync session.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Checkpoint is one durable progress record. Records are append-only
// within a session; the newest row wins on resume.
type Checkpoint struct {
	ID                  uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID           string    `gorm:"not null;size:36;index" json:"session_id"`
	BatchID             int       `gorm:"not null" json:"batch_id"`
	OperationIndex      int       `gorm:"not null" json:"operation_index"`
	TotalOperations     int       `gorm:"not null" json:"total_operations"`
	CompletedOperations int       `gorm:"not null" json:"completed_operations"`
	Status              string    `gorm:"not null;size:20;default:in_progress" json:"status"`
	Timestamp           time.Time `gorm:"autoCreateTime" json:"timestamp"`
	Metadata            string    `gorm:"type:text" json:"-"`

	// Parsed metadata (not stored in DB).
	ParsedMetadata map[string]any `gorm:"-" json:"metadata,omitempty"`
}

// TableName returns the table name for Checkpoint.
func (Checkpoint) TableName() string {
	return "checkpoints"
}

// GetMetadata returns the parsed metadata blob.
func (c *Checkpoint) GetMetadata() (map[string]any, error) {
	if c.ParsedMetadata != nil {
		return c.ParsedMetadata, nil
	}
	if c.Metadata == "" {
		return make(map[string]any), nil
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(c.Metadata), &meta); err != nil {
		return nil, err
	}
	c.ParsedMetadata = meta
	return meta, nil
}

// SetMetadata sets the metadata blob from a map.
func (c *Checkpoint) SetMetadata(meta map[string]any) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	c.Metadata = string(data)
	c.ParsedMetadata = meta
	return nil
}

// ChangelogEntry is one executed operation's outcome, kept for history
// and rollback generation.
type ChangelogEntry struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID     string    `gorm:"not null;size:36;index" json:"session_id"`
	RowID         string    `gorm:"not null;size:255" json:"row_id"`
	OperationType string    `gorm:"not null;size:20" json:"operation_type"`
	ObjectType    string    `gorm:"not null;size:50" json:"object_type"`
	ResourceID    int64     `json:"resource_id,omitempty"`
	Success       bool      `gorm:"not null" json:"success"`
	ErrorKind     string    `gorm:"size:50" json:"error_kind,omitempty"`
	ErrorMessage  string    `gorm:"type:text" json:"error_message,omitempty"`
	DurationMS    int64     `json:"duration_ms"`
	Retried       bool      `json:"retried"`
	Timestamp     time.Time `gorm:"autoCreateTime" json:"timestamp"`

	// PriorState snapshots the remote entity before a destructive
	// operation, so rollback can restore it. JSON blob; empty for
	// creates.
	PriorState string `gorm:"type:text" json:"-"`
}

// TableName returns the table name for ChangelogEntry.
func (ChangelogEntry) TableName() string {
	return "changelog_entries"
}

// GetPriorState returns the parsed prior-state snapshot.
func (e *ChangelogEntry) GetPriorState() (map[string]any, error) {
	if e.PriorState == "" {
		return nil, nil
	}
	var state map[string]any
	if err := json.Unmarshal([]byte(e.PriorState), &state); err != nil {
		return nil, err
	}
	return state, nil
}

// SetPriorState sets the prior-state snapshot from a map.
func (e *ChangelogEntry) SetPriorState(state map[string]any) error {
	if state == nil {
		e.PriorState = ""
		return nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	e.PriorState = string(data)
	return nil
}

// AllModels returns every model for schema migration.
func AllModels() []any {
	return []any{
		&Checkpoint{},
		&ChangelogEntry{},
	}
}
