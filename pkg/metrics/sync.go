package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SyncMetrics instruments the reconciliation pipeline: executed
// operations, request latency, throttle limit, and resolver cache
// effectiveness.
type SyncMetrics struct {
	operations     *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	throttleLimit  prometheus.Gauge
	inFlight       prometheus.Gauge
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	retries        prometheus.Counter
}

// NewSyncMetrics creates the pipeline metrics set.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewSyncMetrics() *SyncMetrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &SyncMetrics{
		operations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "bamsync_operations_total",
				Help: "Executed operations by action, object type and outcome",
			},
			[]string{"action", "object_type", "outcome"},
		),
		requestLatency: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bamsync_operation_duration_seconds",
				Help:    "Operation wall time by action",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		throttleLimit: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "bamsync_throttle_limit",
				Help: "Current adaptive concurrency limit",
			},
		),
		inFlight: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "bamsync_operations_in_flight",
				Help: "Operations currently holding a throttle slot",
			},
		),
		cacheHits: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "bamsync_resolver_cache_hits_total",
				Help: "Resolver cache hits by layer",
			},
			[]string{"layer"}, // "disk", "view", "negative"
		),
		cacheMisses: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "bamsync_resolver_cache_misses_total",
				Help: "Resolver cache misses by layer",
			},
			[]string{"layer"},
		),
		retries: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "bamsync_request_retries_total",
				Help: "Requests that needed at least one retry",
			},
		),
	}
}

// RecordOperation records one finished operation.
func (m *SyncMetrics) RecordOperation(action, objectType, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(action, objectType, outcome).Inc()
	m.requestLatency.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordThrottleLimit records the current concurrency limit.
func (m *SyncMetrics) RecordThrottleLimit(limit int) {
	if m == nil {
		return
	}
	m.throttleLimit.Set(float64(limit))
}

// TaskStarted marks a throttle slot acquired.
func (m *SyncMetrics) TaskStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// TaskFinished marks a throttle slot released.
func (m *SyncMetrics) TaskFinished() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

// RecordCacheHit records a resolver cache hit for a layer.
func (m *SyncMetrics) RecordCacheHit(layer string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(layer).Inc()
}

// RecordCacheMiss records a resolver cache miss for a layer.
func (m *SyncMetrics) RecordCacheMiss(layer string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(layer).Inc()
}

// RecordRetry counts a request that was retried.
func (m *SyncMetrics) RecordRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}
