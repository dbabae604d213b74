// Package throttle is an adaptive concurrency limiter for the executor.
//
// A fixed-permit semaphore cannot serve here: the limit moves at runtime
// in response to observed error rate and latency. The throttle therefore
// tracks an active count against a mutable limit behind a condition
// variable, and adjusts the limit from feedback the executor records.
package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/netgrove/bamsync/internal/logger"
)

// Config tunes the adaptive loop. Zero values select the defaults.
type Config struct {
	// Initial, Min, and Max bound the concurrency limit.
	// Defaults: 10, 1, 50.
	Initial int
	Min     int
	Max     int

	// HealthyErrorRate is the error rate below which the limit may grow.
	// Default 0.01.
	HealthyErrorRate float64

	// UnhealthyErrorRate is the error rate above which the limit shrinks.
	// Default 0.05.
	UnhealthyErrorRate float64

	// HighLatency is the average success latency above which the limit
	// shrinks. Default 1s.
	HighLatency time.Duration

	// AdjustInterval is the minimum spacing between adjustments.
	// Default 10s. Rate-limit feedback bypasses the cadence.
	AdjustInterval time.Duration

	// IncreaseFactor, DecreaseFactor, and RateLimitFactor scale the
	// limit on healthy, unhealthy, and rate-limited feedback.
	// Defaults: 1.2, 0.8, 0.5.
	IncreaseFactor  float64
	DecreaseFactor  float64
	RateLimitFactor float64

	// LatencySamples sizes the success latency ring. Default 100.
	LatencySamples int
}

func (c *Config) applyDefaults() {
	if c.Initial == 0 {
		c.Initial = 10
	}
	if c.Min == 0 {
		c.Min = 1
	}
	if c.Max == 0 {
		c.Max = 50
	}
	if c.HealthyErrorRate == 0 {
		c.HealthyErrorRate = 0.01
	}
	if c.UnhealthyErrorRate == 0 {
		c.UnhealthyErrorRate = 0.05
	}
	if c.HighLatency == 0 {
		c.HighLatency = time.Second
	}
	if c.AdjustInterval == 0 {
		c.AdjustInterval = 10 * time.Second
	}
	if c.IncreaseFactor == 0 {
		c.IncreaseFactor = 1.2
	}
	if c.DecreaseFactor == 0 {
		c.DecreaseFactor = 0.8
	}
	if c.RateLimitFactor == 0 {
		c.RateLimitFactor = 0.5
	}
	if c.LatencySamples == 0 {
		c.LatencySamples = 100
	}
}

// Throttle is the adaptive limiter. Safe for concurrent use.
type Throttle struct {
	cfg Config

	mu   sync.Mutex
	cond *sync.Cond

	active int
	limit  int

	// Window counters since the last adjustment.
	total  int
	failed int

	// Ring of recent success latencies.
	latencies []time.Duration
	latIdx    int
	latFull   bool

	lastAdjust time.Time
	now        func() time.Time
}

// New creates a throttle with the configured bounds.
func New(cfg Config) *Throttle {
	cfg.applyDefaults()
	t := &Throttle{
		cfg:       cfg,
		limit:     cfg.Initial,
		latencies: make([]time.Duration, cfg.LatencySamples),
		now:       time.Now,
	}
	t.cond = sync.NewCond(&t.mu)
	t.lastAdjust = t.now()
	return t
}

// Acquire blocks until a slot is free or the context is cancelled.
func (t *Throttle) Acquire(ctx context.Context) error {
	// Wake waiters when the context dies so the loop can observe it.
	stop := context.AfterFunc(ctx, func() {
		t.mu.Lock()
		t.cond.Broadcast()
		t.mu.Unlock()
	})
	defer stop()

	t.mu.Lock()
	defer t.mu.Unlock()
	for t.active >= t.limit {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.cond.Wait()
	}
	t.active++
	return nil
}

// Release frees a slot and wakes one waiter.
func (t *Throttle) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active > 0 {
		t.active--
	}
	t.cond.Signal()
}

// RecordSuccess feeds one successful operation latency.
func (t *Throttle) RecordSuccess(latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total++
	t.latencies[t.latIdx] = latency
	t.latIdx = (t.latIdx + 1) % len(t.latencies)
	if t.latIdx == 0 {
		t.latFull = true
	}

	t.maybeAdjustLocked()
}

// RecordFailure feeds one failed operation. A rate-limited failure
// triggers an immediate stronger decrease outside the normal cadence.
func (t *Throttle) RecordFailure(rateLimited bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total++
	t.failed++

	if rateLimited {
		t.setLimitLocked(scale(t.limit, t.cfg.RateLimitFactor), "rate-limited")
		t.lastAdjust = t.now()
		t.resetWindowLocked()
		return
	}
	t.maybeAdjustLocked()
}

// Limit returns the current concurrency limit.
func (t *Throttle) Limit() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limit
}

// InFlight returns the current active count.
func (t *Throttle) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// maybeAdjustLocked applies the feedback loop at most once per interval.
func (t *Throttle) maybeAdjustLocked() {
	if t.now().Sub(t.lastAdjust) < t.cfg.AdjustInterval {
		return
	}
	if t.total == 0 {
		t.lastAdjust = t.now()
		return
	}

	errorRate := float64(t.failed) / float64(t.total)
	avgLatency := t.avgLatencyLocked()

	switch {
	case errorRate < t.cfg.HealthyErrorRate && avgLatency < t.cfg.HighLatency:
		t.setLimitLocked(scale(t.limit, t.cfg.IncreaseFactor), "healthy")
	case errorRate > t.cfg.UnhealthyErrorRate || avgLatency >= t.cfg.HighLatency:
		t.setLimitLocked(scale(t.limit, t.cfg.DecreaseFactor), "unhealthy")
	}

	t.lastAdjust = t.now()
	t.resetWindowLocked()
}

// setLimitLocked clamps and applies a new limit. Raising the limit wakes
// waiters; lowering it never preempts active tasks, new acquires just
// wait longer.
func (t *Throttle) setLimitLocked(limit int, reason string) {
	if limit < t.cfg.Min {
		limit = t.cfg.Min
	}
	if limit > t.cfg.Max {
		limit = t.cfg.Max
	}
	if limit == t.limit {
		return
	}

	raised := limit > t.limit
	logger.Debug("throttle limit adjusted",
		"limit", limit, "previous", t.limit, "reason", reason)
	t.limit = limit
	if raised {
		t.cond.Broadcast()
	}
}

func (t *Throttle) resetWindowLocked() {
	t.total = 0
	t.failed = 0
}

// avgLatencyLocked averages the filled part of the latency ring.
func (t *Throttle) avgLatencyLocked() time.Duration {
	n := t.latIdx
	if t.latFull {
		n = len(t.latencies)
	}
	if n == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < n; i++ {
		sum += t.latencies[i]
	}
	return sum / time.Duration(n)
}

// scale multiplies a limit by a factor, always moving at least one step
// so small limits are not stuck by integer truncation.
func scale(limit int, factor float64) int {
	scaled := int(float64(limit) * factor)
	if factor > 1 && scaled == limit {
		scaled = limit + 1
	}
	if factor < 1 && scaled == limit {
		scaled = limit - 1
	}
	return scaled
}
