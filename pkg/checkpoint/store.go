// Package checkpoint persists per-session sync progress and an
// append-only changelog in an embedded sqlite database. A driver writes
// checkpoints periodically during execution and reads the latest one
// back to resume an interrupted session.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNoCheckpoint is returned when a session has no checkpoint rows.
var ErrNoCheckpoint = errors.New("no checkpoint recorded for session")

// Config contains store configuration.
type Config struct {
	// Path is the sqlite database file. Default .checkpoints/bamsync.db;
	// ":memory:" keeps the store ephemeral.
	Path string
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.Path == "" {
		c.Path = filepath.Join(".checkpoints", "bamsync.db")
	}
}

// Store is the gorm-backed checkpoint and changelog store.
type Store struct {
	db *gorm.DB
}

// New opens the store, creating the database file and schema on first
// use.
func New(config *Config) (*Store, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()

	dsn := config.Path
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
		}
		// WAL keeps concurrent readers cheap; busy_timeout covers the
		// checkpoint writer racing a status read.
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to migrate checkpoint schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Save appends a checkpoint row. Checkpoints are never updated in
// place; resume reads the newest row per session.
func (s *Store) Save(ctx context.Context, cp *Checkpoint) error {
	if cp.SessionID == "" {
		return fmt.Errorf("checkpoint session id must not be empty")
	}
	if cp.Status == "" {
		cp.Status = string(StatusInProgress)
	}
	if err := s.db.WithContext(ctx).Create(cp).Error; err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Latest returns the newest checkpoint for a session.
func (s *Store) Latest(ctx context.Context, sessionID string) (*Checkpoint, error) {
	var cp Checkpoint
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		First(&cp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrNoCheckpoint)
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return &cp, nil
}

// LatestAny returns the newest checkpoint across all sessions. Used by
// the status command when no session is named.
func (s *Store) LatestAny(ctx context.Context) (*Checkpoint, error) {
	var cp Checkpoint
	err := s.db.WithContext(ctx).Order("id DESC").First(&cp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoCheckpoint
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return &cp, nil
}

// Sessions lists distinct session IDs, newest first.
func (s *Store) Sessions(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&Checkpoint{}).
		Distinct("session_id").
		Order("session_id").
		Limit(limit).
		Pluck("session_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return ids, nil
}

// AppendChangelog records executed operations. Entries are append-only.
func (s *Store) AppendChangelog(ctx context.Context, entries []ChangelogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&entries).Error; err != nil {
		return fmt.Errorf("failed to append changelog: %w", err)
	}
	return nil
}

// Changelog returns a session's entries in execution order.
func (s *Store) Changelog(ctx context.Context, sessionID string) ([]ChangelogEntry, error) {
	var entries []ChangelogEntry
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load changelog: %w", err)
	}
	return entries, nil
}

// SuccessfulEntries returns the session's successful operations in
// execution order; the rollback generator inverts these.
func (s *Store) SuccessfulEntries(ctx context.Context, sessionID string) ([]ChangelogEntry, error) {
	var entries []ChangelogEntry
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND success = ?", sessionID, true).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load changelog: %w", err)
	}
	return entries, nil
}

// PruneBefore removes checkpoints and changelog entries older than the
// cutoff. History is bounded, not immortal.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) error {
	if err := s.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&Checkpoint{}).Error; err != nil {
		return fmt.Errorf("failed to prune checkpoints: %w", err)
	}
	if err := s.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&ChangelogEntry{}).Error; err != nil {
		return fmt.Errorf("failed to prune changelog: %w", err)
	}
	return nil
}

// DB returns the underlying GORM database connection. Useful for
// advanced queries or testing.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
