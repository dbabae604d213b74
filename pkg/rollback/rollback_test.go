package rollback

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/netgrove/bamsync/pkg/checkpoint"
	"github.com/netgrove/bamsync/pkg/model"
)

func newTestStore(t *testing.T) *checkpoint.Store {
	t.Helper()
	store, err := checkpoint.New(&checkpoint.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("checkpoint.New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seed(t *testing.T, store *checkpoint.Store, session string, entries []checkpoint.ChangelogEntry) {
	t.Helper()
	for i := range entries {
		entries[i].SessionID = session
	}
	if err := store.AppendChangelog(context.Background(), entries); err != nil {
		t.Fatalf("AppendChangelog: %v", err)
	}
}

func row(id string, action model.Action, typ model.ObjectType, fields map[string]string) *model.Row {
	if fields == nil {
		fields = map[string]string{}
	}
	return &model.Row{
		RowID:         id,
		Action:        action,
		ObjectType:    typ,
		Configuration: "Corp",
		Fields:        fields,
	}
}

func TestGenerateInvertsInReverseOrder(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, "sess-1", []checkpoint.ChangelogEntry{
		{RowID: "r1", OperationType: "create", ObjectType: "ip4_network", ResourceID: 301, Success: true},
		{RowID: "r2", OperationType: "create", ObjectType: "ip4_address", ResourceID: 302, Success: true},
		{RowID: "r3", OperationType: "create", ObjectType: "host_record", ResourceID: 303, Success: false,
			ErrorKind: "validation"},
	})

	rows := []*model.Row{
		row("r1", model.ActionCreate, model.TypeIP4Network, map[string]string{"cidr": "10.0.5.0/24"}),
		row("r2", model.ActionCreate, model.TypeIP4Address, map[string]string{"address": "10.0.5.9"}),
		row("r3", model.ActionCreate, model.TypeHostRecord, map[string]string{"fqdn": "app.example.com"}),
	}

	pl, err := New(store).Generate(context.Background(), "sess-1", rows)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(pl.Rows) != 2 {
		t.Fatalf("rows = %d, want 2 (failed r3 has nothing to undo)", len(pl.Rows))
	}
	// The address created last is deleted first.
	if pl.Rows[0].RowID != "r2" || pl.Rows[1].RowID != "r1" {
		t.Errorf("order = %s, %s, want r2, r1", pl.Rows[0].RowID, pl.Rows[1].RowID)
	}
	for _, r := range pl.Rows {
		if r.Action != model.ActionDelete {
			t.Errorf("row %s action = %s, want delete", r.RowID, r.Action)
		}
	}
	if got := pl.Rows[1].Get("cidr"); got != "10.0.5.0/24" {
		t.Errorf("identity field lost: cidr = %q", got)
	}
}

func TestGenerateRestoresPriorStateForUpdates(t *testing.T) {
	store := newTestStore(t)
	entry := checkpoint.ChangelogEntry{
		RowID: "r1", OperationType: "update", ObjectType: "ip4_network", ResourceID: 301, Success: true,
	}
	if err := entry.SetPriorState(map[string]any{
		"name":       "old-name",
		"properties": map[string]any{"description": "legacy segment", "vlan": "77"},
	}); err != nil {
		t.Fatalf("SetPriorState: %v", err)
	}
	seed(t, store, "sess-1", []checkpoint.ChangelogEntry{entry})

	rows := []*model.Row{
		row("r1", model.ActionUpdate, model.TypeIP4Network, map[string]string{
			"cidr": "10.0.5.0/24", "name": "new-name",
		}),
	}
	pl, err := New(store).Generate(context.Background(), "sess-1", rows)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(pl.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(pl.Rows))
	}
	inv := pl.Rows[0]
	if inv.Action != model.ActionUpdate {
		t.Errorf("action = %s, want update", inv.Action)
	}
	if got := inv.Get("name"); got != "old-name" {
		t.Errorf("name = %q, want old-name", got)
	}
	if got := inv.Get("description"); got != "legacy segment" {
		t.Errorf("description = %q, want legacy segment", got)
	}
	// Snapshot properties without a CSV column stay out of the plan.
	if inv.Has("vlan") {
		t.Errorf("unknown property leaked into the plan: vlan = %q", inv.Get("vlan"))
	}
	if got := inv.Get("cidr"); got != "10.0.5.0/24" {
		t.Errorf("identity field lost: cidr = %q", got)
	}
}

func TestGenerateUpdateWithoutPriorStateIsSkipped(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, "sess-1", []checkpoint.ChangelogEntry{
		{RowID: "r1", OperationType: "update", ObjectType: "ip4_network", ResourceID: 301, Success: true},
	})

	rows := []*model.Row{
		row("r1", model.ActionUpdate, model.TypeIP4Network, map[string]string{"cidr": "10.0.5.0/24"}),
	}
	pl, err := New(store).Generate(context.Background(), "sess-1", rows)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(pl.Rows) != 0 || len(pl.Skipped) != 1 {
		t.Fatalf("rows/skipped = %d/%d, want 0/1", len(pl.Rows), len(pl.Skipped))
	}
	if pl.Skipped[0].RowID != "r1" {
		t.Errorf("skipped row = %s, want r1", pl.Skipped[0].RowID)
	}
}

func TestGenerateRecreatesDeletedFromPriorState(t *testing.T) {
	store := newTestStore(t)
	entry := checkpoint.ChangelogEntry{
		RowID: "r1", OperationType: "delete", ObjectType: "ip4_network", ResourceID: 301, Success: true,
	}
	if err := entry.SetPriorState(map[string]any{"name": "segment-a"}); err != nil {
		t.Fatalf("SetPriorState: %v", err)
	}
	seed(t, store, "sess-1", []checkpoint.ChangelogEntry{entry})

	rows := []*model.Row{
		row("r1", model.ActionDelete, model.TypeIP4Network, map[string]string{"cidr": "10.0.5.0/24"}),
	}
	pl, err := New(store).Generate(context.Background(), "sess-1", rows)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(pl.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(pl.Rows))
	}
	inv := pl.Rows[0]
	if inv.Action != model.ActionCreate {
		t.Errorf("action = %s, want create", inv.Action)
	}
	if got := inv.Get("name"); got != "segment-a" {
		t.Errorf("name = %q, want segment-a", got)
	}
}

func TestGenerateResourceTagDeleteIsSkipped(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, "sess-1", []checkpoint.ChangelogEntry{
		{RowID: "r1", OperationType: "delete", ObjectType: "resource_tag", ResourceID: 42, Success: true},
	})

	rows := []*model.Row{
		row("r1", model.ActionDelete, model.TypeResourceTag, map[string]string{
			"tag": "env/prod", "resource": "networks/301",
		}),
	}
	pl, err := New(store).Generate(context.Background(), "sess-1", rows)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(pl.Rows) != 0 || len(pl.Skipped) != 1 {
		t.Fatalf("rows/skipped = %d/%d, want 0/1", len(pl.Rows), len(pl.Skipped))
	}
}

func TestGenerateMissingRowIsSkipped(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, "sess-1", []checkpoint.ChangelogEntry{
		{RowID: "ghost", OperationType: "create", ObjectType: "tag_group", ResourceID: 40, Success: true},
	})

	pl, err := New(store).Generate(context.Background(), "sess-1", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(pl.Skipped) != 1 || pl.Skipped[0].RowID != "ghost" {
		t.Fatalf("skipped = %+v, want ghost", pl.Skipped)
	}
}

func TestGenerateEmptySessionFails(t *testing.T) {
	store := newTestStore(t)
	if _, err := New(store).Generate(context.Background(), "nope", nil); err == nil {
		t.Fatal("Generate accepted a session with nothing to roll back")
	}
}

func TestWriteEmitsParseableCSV(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, "sess-1", []checkpoint.ChangelogEntry{
		{RowID: "r1", OperationType: "create", ObjectType: "tag_group", ResourceID: 40, Success: true},
		{RowID: "r2", OperationType: "delete", ObjectType: "resource_tag", ResourceID: 42, Success: true},
	})

	rows := []*model.Row{
		row("r1", model.ActionCreate, model.TypeTagGroup, map[string]string{"name": "env"}),
		row("r2", model.ActionDelete, model.TypeResourceTag, map[string]string{
			"tag": "env/prod", "resource": "networks/301",
		}),
	}
	pl, err := New(store).Generate(context.Background(), "sess-1", rows)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var buf bytes.Buffer
	if err := pl.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "# rollback plan for session sess-1") {
		t.Errorf("missing provenance header:\n%s", out)
	}
	if !strings.Contains(out, "# skipped r2:") {
		t.Errorf("missing skip note:\n%s", out)
	}
	if !strings.Contains(out, "row_id,action,object_type") {
		t.Errorf("missing CSV header:\n%s", out)
	}
	if !strings.Contains(out, "delete,tag_group") {
		t.Errorf("missing compensating row:\n%s", out)
	}
}
