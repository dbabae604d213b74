package metrics

import (
	"testing"
	"time"
)

// The registry is package-global, so the disabled and enabled phases
// run in one test in order.
func TestSyncMetricsLifecycle(t *testing.T) {
	if IsEnabled() {
		t.Fatal("registry enabled before InitRegistry")
	}

	disabled := NewSyncMetrics()
	if disabled != nil {
		t.Fatal("NewSyncMetrics returned non-nil while disabled")
	}
	// Nil receivers are no-ops, not panics.
	disabled.RecordOperation("create", "ip4_network", "success", time.Second)
	disabled.RecordThrottleLimit(10)
	disabled.TaskStarted()
	disabled.TaskFinished()
	disabled.RecordCacheHit("disk")
	disabled.RecordCacheMiss("view")
	disabled.RecordRetry()

	InitRegistry()
	InitRegistry() // idempotent
	if !IsEnabled() {
		t.Fatal("registry not enabled after InitRegistry")
	}
	if Handler() == nil {
		t.Fatal("Handler returned nil while enabled")
	}

	m := NewSyncMetrics()
	if m == nil {
		t.Fatal("NewSyncMetrics returned nil while enabled")
	}
	m.RecordOperation("create", "ip4_network", "success", 250*time.Millisecond)
	m.RecordOperation("delete", "ip4_address", "failure", time.Second)
	m.RecordThrottleLimit(12)
	m.TaskStarted()
	m.TaskFinished()
	m.RecordCacheHit("disk")
	m.RecordRetry()

	families, err := GetRegistry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := map[string]bool{}
	for _, fam := range families {
		found[fam.GetName()] = true
	}
	for _, name := range []string{
		"bamsync_operations_total",
		"bamsync_operation_duration_seconds",
		"bamsync_throttle_limit",
		"bamsync_resolver_cache_hits_total",
		"bamsync_request_retries_total",
	} {
		if !found[name] {
			t.Errorf("metric %s not gathered", name)
		}
	}
}
