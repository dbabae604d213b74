package plan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/netgrove/bamsync/pkg/bam"
	"github.com/netgrove/bamsync/pkg/model"
	"github.com/netgrove/bamsync/pkg/resolver"
)

// fakeRemote serves canned collection responses keyed by path and
// filter. Unregistered lookups return an empty page.
type fakeRemote struct {
	*httptest.Server
	pages map[string]string
}

func newFakeRemote(t *testing.T) *fakeRemote {
	t.Helper()
	fake := &fakeRemote{pages: map[string]string{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/sessions", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"apiToken":"tok","basicAuthenticationCredentials":"Y3JlZA=="}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path + "|" + r.URL.Query().Get("filter")
		if page, ok := fake.pages[key]; ok {
			fmt.Fprintf(w, `{"data":%s}`, page)
			return
		}
		fmt.Fprintf(w, `{"data":[]}`)
	})

	fake.Server = httptest.NewServer(mux)
	t.Cleanup(fake.Close)
	return fake
}

func (f *fakeRemote) register(path, filter, data string) {
	f.pages["/api/v2"+path+"|"+filter] = data
}

func newTestPlanner(t *testing.T, remote *fakeRemote, mode UpdateMode) *Planner {
	t.Helper()
	client, err := bam.New(bam.Config{
		URL:       remote.URL,
		Username:  "admin",
		Password:  "secret",
		VerifySSL: true,
		RetryBase: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	res := resolver.New(client, resolver.Options{})
	t.Cleanup(func() { _ = res.Close() })

	planner, err := New(client, res, mode)
	if err != nil {
		t.Fatalf("failed to create planner: %v", err)
	}
	return planner
}

func row(id string, action model.Action, typ model.ObjectType, config, view string, fields map[string]string) model.Row {
	return model.Row{
		RowID:         id,
		Action:        action,
		ObjectType:    typ,
		Configuration: config,
		View:          view,
		Fields:        fields,
	}
}

func findOp(t *testing.T, p *Plan, rowID string) *Operation {
	t.Helper()
	for i := range p.Operations {
		if p.Operations[i].RowID == rowID {
			return &p.Operations[i]
		}
	}
	t.Fatalf("operation for row %s not in plan (ops %d, errors %v)", rowID, len(p.Operations), p.Errors)
	return nil
}

func TestCreateChainDefersParents(t *testing.T) {
	remote := newFakeRemote(t)
	remote.register("/configurations", "name:'Corp'", `[{"id":100,"name":"Corp"}]`)
	planner := newTestPlanner(t, remote, Upsert)

	rows := []model.Row{
		row("r1", model.ActionCreate, model.TypeIP4Block, "Corp", "",
			map[string]string{"cidr": "10.0.0.0/8"}),
		row("r2", model.ActionCreate, model.TypeIP4Network, "Corp", "",
			map[string]string{"cidr": "10.0.1.0/24"}),
		row("r3", model.ActionCreate, model.TypeIP4Address, "Corp", "",
			map[string]string{"address": "10.0.1.5"}),
	}

	p, err := planner.Build(context.Background(), rows)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", p.Errors)
	}
	if len(p.Operations) != 3 {
		t.Fatalf("got %d operations, want 3", len(p.Operations))
	}

	network := findOp(t, p, "r2")
	if len(network.DependsOn) != 1 || network.DependsOn[0] != "r1" {
		t.Errorf("network DependsOn = %v, want [r1]", network.DependsOn)
	}
	if got := network.Payload[DeferredKey("block_id")]; got != "10.0.0.0/8" {
		t.Errorf("deferred block sentinel = %v", got)
	}
	if network.Deferred[DeferredKey("block_id")] != "r1" {
		t.Errorf("deferred producer = %v", network.Deferred)
	}

	address := findOp(t, p, "r3")
	if len(address.DependsOn) != 1 || address.DependsOn[0] != "r2" {
		t.Errorf("address DependsOn = %v, want [r2]", address.DependsOn)
	}

	// The configuration existed remotely, so it is a concrete ID.
	if got := network.Payload["configuration_id"]; got != int64(100) {
		t.Errorf("configuration_id = %v (%T), want 100", got, got)
	}
}

func TestAbsentDeleteIsNoOp(t *testing.T) {
	remote := newFakeRemote(t)
	remote.register("/configurations", "name:'Corp'", `[{"id":100,"name":"Corp"}]`)
	planner := newTestPlanner(t, remote, Upsert)

	rows := []model.Row{
		row("r1", model.ActionDelete, model.TypeIP4Network, "Corp", "",
			map[string]string{"cidr": "10.9.0.0/24"}),
	}

	p, err := planner.Build(context.Background(), rows)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Operations) != 0 {
		t.Fatalf("expected no operations, got %d", len(p.Operations))
	}
	if len(p.Skipped) != 1 || p.Skipped[0].RowID != "r1" {
		t.Fatalf("expected row r1 skipped, got %v", p.Skipped)
	}
}

func TestCreateOnlyRejectsExisting(t *testing.T) {
	remote := newFakeRemote(t)
	remote.register("/configurations", "name:'Corp'", `[{"id":100,"name":"Corp"}]`)
	remote.register("/configurations/100/networks", "range:'10.0.1.0/24'",
		`[{"id":300,"range":"10.0.1.0/24"}]`)
	planner := newTestPlanner(t, remote, CreateOnly)

	rows := []model.Row{
		row("r1", model.ActionCreate, model.TypeIP4Network, "Corp", "",
			map[string]string{"cidr": "10.0.1.0/24"}),
	}

	p, err := planner.Build(context.Background(), rows)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Errors) != 1 || p.Errors[0].RowID != "r1" {
		t.Fatalf("expected a row error for r1, got %v", p.Errors)
	}
}

func TestUpsertBindsExisting(t *testing.T) {
	remote := newFakeRemote(t)
	remote.register("/configurations", "name:'Corp'", `[{"id":100,"name":"Corp"}]`)
	remote.register("/configurations/100/networks", "range:'10.0.1.0/24'",
		`[{"id":300,"range":"10.0.1.0/24"}]`)
	planner := newTestPlanner(t, remote, Upsert)

	rows := []model.Row{
		row("r1", model.ActionCreate, model.TypeIP4Network, "Corp", "",
			map[string]string{"cidr": "10.0.1.0/24"}),
	}

	p, err := planner.Build(context.Background(), rows)
	if err != nil {
		t.Fatal(err)
	}
	op := findOp(t, p, "r1")
	if op.Type != model.ActionUpdate {
		t.Errorf("type = %s, want update", op.Type)
	}
	if op.ResourceID != 300 {
		t.Errorf("resource id = %d, want 300", op.ResourceID)
	}
}

func TestMissingParentIsPathNotFound(t *testing.T) {
	remote := newFakeRemote(t)
	planner := newTestPlanner(t, remote, Upsert)

	rows := []model.Row{
		row("r1", model.ActionCreate, model.TypeIP4Network, "Ghost", "",
			map[string]string{"cidr": "10.0.1.0/24"}),
	}

	p, err := planner.Build(context.Background(), rows)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Errors) != 1 {
		t.Fatalf("expected one error, got %v", p.Errors)
	}
	if kind := bam.Kind(p.Errors[0]); kind != bam.KindPathNotFound {
		t.Errorf("error kind = %s, want path-not-found", kind)
	}
}

func TestDeferredConfigurationSuppressesProbe(t *testing.T) {
	remote := newFakeRemote(t)
	planner := newTestPlanner(t, remote, Upsert)

	rows := []model.Row{
		row("r1", model.ActionCreate, model.TypeConfiguration, "", "",
			map[string]string{"name": "Fresh"}),
		row("r2", model.ActionCreate, model.TypeView, "Fresh", "",
			map[string]string{"name": "Internal"}),
	}

	p, err := planner.Build(context.Background(), rows)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", p.Errors)
	}

	view := findOp(t, p, "r2")
	if view.Deferred[DeferredKey("configuration_id")] != "r1" {
		t.Errorf("view deferred = %v, want configuration from r1", view.Deferred)
	}
	if view.Type != model.ActionCreate {
		t.Errorf("view type = %s, want create", view.Type)
	}
}

func TestRecordDependsOnBatchZone(t *testing.T) {
	remote := newFakeRemote(t)
	remote.register("/configurations", "name:'Corp'", `[{"id":100,"name":"Corp"}]`)
	remote.register("/configurations/100/views", "name:'Internal'", `[{"id":200,"name":"Internal"}]`)
	planner := newTestPlanner(t, remote, Upsert)

	rows := []model.Row{
		row("r1", model.ActionCreate, model.TypeDNSZone, "Corp", "Internal",
			map[string]string{"fqdn": "example.com"}),
		row("r2", model.ActionCreate, model.TypeHostRecord, "Corp", "Internal",
			map[string]string{"fqdn": "www.example.com", "addresses": "10.0.1.5"}),
	}

	p, err := planner.Build(context.Background(), rows)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", p.Errors)
	}

	record := findOp(t, p, "r2")
	if record.Deferred[DeferredKey("zone_id")] != "r1" {
		t.Errorf("record deferred = %v, want zone from r1", record.Deferred)
	}
}

func TestDeleteOrderingChildFirst(t *testing.T) {
	remote := newFakeRemote(t)
	remote.register("/configurations", "name:'Corp'", `[{"id":100,"name":"Corp"}]`)
	remote.register("/configurations/100/blocks", "range:'10.0.0.0/8'",
		`[{"id":10,"range":"10.0.0.0/8"}]`)
	remote.register("/configurations/100/networks", "range:'10.0.1.0/24'",
		`[{"id":300,"range":"10.0.1.0/24"}]`)
	planner := newTestPlanner(t, remote, Upsert)

	rows := []model.Row{
		row("r1", model.ActionDelete, model.TypeIP4Block, "Corp", "",
			map[string]string{"cidr": "10.0.0.0/8"}),
		row("r2", model.ActionDelete, model.TypeIP4Network, "Corp", "",
			map[string]string{"cidr": "10.0.1.0/24"}),
	}

	p, err := planner.Build(context.Background(), rows)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", p.Errors)
	}

	block := findOp(t, p, "r1")
	if len(block.DependsOn) != 1 || block.DependsOn[0] != "r2" {
		t.Errorf("block delete DependsOn = %v, want [r2]", block.DependsOn)
	}
	network := findOp(t, p, "r2")
	if len(network.DependsOn) != 0 {
		t.Errorf("network delete DependsOn = %v, want none", network.DependsOn)
	}
}

func TestUpdateMissingTargetFails(t *testing.T) {
	remote := newFakeRemote(t)
	remote.register("/configurations", "name:'Corp'", `[{"id":100,"name":"Corp"}]`)
	planner := newTestPlanner(t, remote, Upsert)

	rows := []model.Row{
		row("r1", model.ActionUpdate, model.TypeIP4Network, "Corp", "",
			map[string]string{"cidr": "10.77.0.0/24"}),
	}

	p, err := planner.Build(context.Background(), rows)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Errors) != 1 {
		t.Fatalf("expected one error, got %v", p.Errors)
	}
	if !errors.Is(p.Errors[0], bam.ErrNotFound) {
		t.Errorf("error = %v, want not-found", p.Errors[0])
	}
}

func TestUpdateModeValidation(t *testing.T) {
	remote := newFakeRemote(t)
	client, err := bam.New(bam.Config{URL: remote.URL, Username: "a", Password: "b"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(client, resolver.New(client, resolver.Options{}), "sideways"); err == nil {
		t.Error("expected error for unknown update mode")
	}
}
