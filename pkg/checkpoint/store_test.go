package checkpoint

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(&Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveAndLatest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, completed := range []int{10, 25, 40} {
		cp := &Checkpoint{
			SessionID:           "sess-1",
			BatchID:             i,
			OperationIndex:      completed,
			TotalOperations:     100,
			CompletedOperations: completed,
		}
		if err := store.Save(ctx, cp); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	latest, err := store.Latest(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.CompletedOperations != 40 {
		t.Errorf("CompletedOperations = %d, want 40", latest.CompletedOperations)
	}
	if latest.Status != string(StatusInProgress) {
		t.Errorf("Status = %q, want in_progress default", latest.Status)
	}
}

func TestLatestUnknownSession(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Latest(context.Background(), "missing")
	if !errors.Is(err, ErrNoCheckpoint) {
		t.Fatalf("error = %v, want ErrNoCheckpoint", err)
	}
}

func TestCheckpointsAreAppendOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &Checkpoint{SessionID: "sess-1", TotalOperations: 10, CompletedOperations: 5}
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	final := &Checkpoint{
		SessionID:           "sess-1",
		TotalOperations:     10,
		CompletedOperations: 10,
		Status:              string(StatusCompleted),
	}
	if err := store.Save(ctx, final); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var count int64
	if err := store.DB().Model(&Checkpoint{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("checkpoint rows = %d, want 2", count)
	}

	latest, err := store.Latest(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Status != string(StatusCompleted) {
		t.Errorf("Status = %q, want completed", latest.Status)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cp := &Checkpoint{SessionID: "sess-1", TotalOperations: 1}
	if err := cp.SetMetadata(map[string]any{"input_file": "rows.csv", "dry_run": false}); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if err := store.Save(ctx, cp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	latest, err := store.Latest(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	meta, err := latest.GetMetadata()
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if meta["input_file"] != "rows.csv" {
		t.Errorf("metadata input_file = %v", meta["input_file"])
	}
}

func TestChangelogOrderAndFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entries := []ChangelogEntry{
		{SessionID: "sess-1", RowID: "r1", OperationType: "create", ObjectType: "ip4_block", ResourceID: 10, Success: true},
		{SessionID: "sess-1", RowID: "r2", OperationType: "create", ObjectType: "ip4_network", Success: false, ErrorKind: "validation", ErrorMessage: "bad gateway address"},
		{SessionID: "sess-1", RowID: "r3", OperationType: "delete", ObjectType: "ip4_address", ResourceID: 30, Success: true},
		{SessionID: "sess-2", RowID: "r1", OperationType: "create", ObjectType: "dns_zone", ResourceID: 40, Success: true},
	}
	if err := store.AppendChangelog(ctx, entries); err != nil {
		t.Fatalf("AppendChangelog: %v", err)
	}

	all, err := store.Changelog(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Changelog: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("entries = %d, want 3", len(all))
	}
	if all[0].RowID != "r1" || all[2].RowID != "r3" {
		t.Errorf("order = %s..%s, want r1..r3", all[0].RowID, all[2].RowID)
	}

	ok, err := store.SuccessfulEntries(ctx, "sess-1")
	if err != nil {
		t.Fatalf("SuccessfulEntries: %v", err)
	}
	if len(ok) != 2 {
		t.Fatalf("successful entries = %d, want 2", len(ok))
	}
	for _, e := range ok {
		if !e.Success {
			t.Errorf("entry %s marked unsuccessful", e.RowID)
		}
	}
}

func TestPriorStateRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := ChangelogEntry{
		SessionID:     "sess-1",
		RowID:         "r1",
		OperationType: "update",
		ObjectType:    "ip4_network",
		ResourceID:    300,
		Success:       true,
	}
	if err := entry.SetPriorState(map[string]any{"name": "old-name", "gatewayAddress": "10.0.5.1"}); err != nil {
		t.Fatalf("SetPriorState: %v", err)
	}
	if err := store.AppendChangelog(ctx, []ChangelogEntry{entry}); err != nil {
		t.Fatalf("AppendChangelog: %v", err)
	}

	entries, err := store.Changelog(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Changelog: %v", err)
	}
	state, err := entries[0].GetPriorState()
	if err != nil {
		t.Fatalf("GetPriorState: %v", err)
	}
	if state["name"] != "old-name" {
		t.Errorf("prior name = %v, want old-name", state["name"])
	}
}

func TestPruneBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, &Checkpoint{SessionID: "old", TotalOperations: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.PruneBefore(ctx, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("PruneBefore: %v", err)
	}

	if _, err := store.Latest(ctx, "old"); !errors.Is(err, ErrNoCheckpoint) {
		t.Fatalf("error = %v, want ErrNoCheckpoint after prune", err)
	}
}

func TestFileBackedStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "bamsync.db")
	store, err := New(&Config{Path: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if err := store.Save(ctx, &Checkpoint{SessionID: "sess-1", TotalOperations: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Latest(ctx, "sess-1"); err != nil {
		t.Fatalf("Latest: %v", err)
	}
}
