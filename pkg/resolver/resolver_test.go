package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/netgrove/bamsync/pkg/bam"
	"github.com/netgrove/bamsync/pkg/metrics"
	"github.com/netgrove/bamsync/pkg/model"
)

type fakeServer struct {
	*httptest.Server
	configCalls  atomic.Int64
	viewCalls    atomic.Int64
	networkCalls atomic.Int64
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fake := &fakeServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/sessions", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"apiToken":"tok","basicAuthenticationCredentials":"Y3JlZA=="}`)
	})
	mux.HandleFunc("/api/v2/configurations", func(w http.ResponseWriter, r *http.Request) {
		fake.configCalls.Add(1)
		if r.URL.Query().Get("filter") == "name:'Corp'" {
			fmt.Fprintf(w, `{"data":[{"id":100,"name":"Corp"}]}`)
			return
		}
		fmt.Fprintf(w, `{"data":[]}`)
	})
	mux.HandleFunc("/api/v2/configurations/100/views", func(w http.ResponseWriter, r *http.Request) {
		fake.viewCalls.Add(1)
		if r.URL.Query().Get("filter") == "name:'Internal'" {
			fmt.Fprintf(w, `{"data":[{"id":200,"name":"Internal"}]}`)
			return
		}
		fmt.Fprintf(w, `{"data":[]}`)
	})
	mux.HandleFunc("/api/v2/configurations/100/networks", func(w http.ResponseWriter, r *http.Request) {
		fake.networkCalls.Add(1)
		fmt.Fprintf(w, `{"data":[{"id":300,"range":"10.0.1.0/24"}]}`)
	})

	fake.Server = httptest.NewServer(mux)
	t.Cleanup(fake.Close)
	return fake
}

func newTestResolver(t *testing.T, server *fakeServer, opts Options) *Resolver {
	t.Helper()
	client, err := bam.New(bam.Config{
		URL:       server.URL,
		Username:  "admin",
		Password:  "secret",
		VerifySSL: true,
		RetryBase: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	r := New(client, opts)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestDiskCacheAmortizesLookups(t *testing.T) {
	server := newFakeServer(t)
	r := newTestResolver(t, server, Options{CacheDir: t.TempDir()})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		id, err := r.ResolveConfiguration(ctx, "Corp")
		if err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
		if id != 100 {
			t.Fatalf("resolve %d: got id %d", i, id)
		}
	}

	if n := server.configCalls.Load(); n != 1 {
		t.Errorf("expected 1 server lookup, got %d", n)
	}
}

func TestNegativeCacheSuppressesRequeries(t *testing.T) {
	server := newFakeServer(t)
	r := newTestResolver(t, server, Options{CacheDir: t.TempDir()})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := r.ResolveView(ctx, "Corp", "Missing")
		if !errors.Is(err, bam.ErrNotFound) {
			t.Fatalf("resolve %d: expected not-found, got %v", i, err)
		}
	}

	if n := server.viewCalls.Load(); n != 1 {
		t.Errorf("expected 1 view lookup despite 3 resolves, got %d", n)
	}
}

func TestViewContextCached(t *testing.T) {
	server := newFakeServer(t)
	r := newTestResolver(t, server, Options{CacheDir: t.TempDir()})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		id, err := r.ResolveView(ctx, "Corp", "Internal")
		if err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
		if id != 200 {
			t.Fatalf("resolve %d: got id %d", i, id)
		}
	}

	if n := server.viewCalls.Load(); n != 1 {
		t.Errorf("expected 1 view lookup, got %d", n)
	}
}

func TestBypassSkipsAllCaches(t *testing.T) {
	server := newFakeServer(t)
	r := newTestResolver(t, server, Options{CacheDir: t.TempDir(), Bypass: true})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := r.ResolveConfiguration(ctx, "Corp"); err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
	}

	if n := server.configCalls.Load(); n != 2 {
		t.Errorf("bypass must hit the server every time, got %d calls", n)
	}
}

func TestFlushDropsDiskEntries(t *testing.T) {
	server := newFakeServer(t)
	r := newTestResolver(t, server, Options{CacheDir: t.TempDir()})

	ctx := context.Background()
	if _, err := r.ResolveConfiguration(ctx, "Corp"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if err := r.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if _, err := r.ResolveConfiguration(ctx, "Corp"); err != nil {
		t.Fatalf("second resolve: %v", err)
	}

	if n := server.configCalls.Load(); n != 2 {
		t.Errorf("expected re-lookup after flush, got %d calls", n)
	}
}

func TestInvalidateDropsOnePath(t *testing.T) {
	server := newFakeServer(t)
	r := newTestResolver(t, server, Options{CacheDir: t.TempDir()})

	ctx := context.Background()
	if _, err := r.ResolveNetwork(ctx, "Corp", "10.0.1.0/24"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	r.Invalidate(model.TypeIP4Network, "Corp", "10.0.1.0/24")
	if _, err := r.ResolveNetwork(ctx, "Corp", "10.0.1.0/24"); err != nil {
		t.Fatalf("second resolve: %v", err)
	}

	if n := server.networkCalls.Load(); n != 2 {
		t.Errorf("expected re-lookup after invalidate, got %d network calls", n)
	}
	// The configuration entry was not invalidated and stays cached.
	if n := server.configCalls.Load(); n != 1 {
		t.Errorf("expected configuration to stay cached, got %d calls", n)
	}
}

// counterValue reads one labeled counter from the metrics registry.
func counterValue(t *testing.T, name, layer string) float64 {
	t.Helper()
	families, err := metrics.GetRegistry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "layer" && label.GetValue() == layer {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestCacheLayersInstrumented(t *testing.T) {
	metrics.InitRegistry()
	server := newFakeServer(t)
	r := newTestResolver(t, server, Options{
		CacheDir: t.TempDir(),
		Metrics:  metrics.NewSyncMetrics(),
	})

	ctx := context.Background()
	// Cold then warm configuration lookup: one disk miss, one disk hit.
	for i := 0; i < 2; i++ {
		if _, err := r.ResolveConfiguration(ctx, "Corp"); err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
	}
	// A missing view probes the server once, then the negative layer
	// answers.
	for i := 0; i < 2; i++ {
		if _, err := r.ResolveView(ctx, "Corp", "Missing"); !errors.Is(err, bam.ErrNotFound) {
			t.Fatalf("resolve %d: expected not-found, got %v", i, err)
		}
	}

	hits := "bamsync_resolver_cache_hits_total"
	misses := "bamsync_resolver_cache_misses_total"
	// The first view resolve re-reads the configuration through the
	// disk layer, so disk hits count the warm lookup plus that re-read.
	if got := counterValue(t, hits, "disk"); got != 2 {
		t.Errorf("disk hits = %v, want 2", got)
	}
	if got := counterValue(t, misses, "disk"); got != 1 {
		t.Errorf("disk misses = %v, want 1", got)
	}
	if got := counterValue(t, hits, "negative"); got != 1 {
		t.Errorf("negative hits = %v, want 1", got)
	}
	if got := counterValue(t, misses, "view"); got != 1 {
		t.Errorf("view misses = %v, want 1", got)
	}
}

func TestCacheKeyTrimsSegments(t *testing.T) {
	a := cacheKey(model.TypeIP4Network, " Corp ", "10.0.1.0/24")
	b := cacheKey(model.TypeIP4Network, "Corp", "10.0.1.0/24")
	if a != b {
		t.Errorf("keys differ: %q vs %q", a, b)
	}
	if a == cacheKey(model.TypeIP4Block, "Corp", "10.0.1.0/24") {
		t.Error("type must be part of the key")
	}
}
