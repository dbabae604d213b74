package bam

import (
	"context"
	"sync/atomic"
)

type retryCounterKey struct{}

// WithRetryCounter returns a context whose requests increment the
// returned counter on every retry: transient backoff, forced
// re-authentication, and rate-limit waits all count. Callers use it to
// attribute retries to a single logical operation on a shared client.
func WithRetryCounter(ctx context.Context) (context.Context, *atomic.Int32) {
	counter := new(atomic.Int32)
	return context.WithValue(ctx, retryCounterKey{}, counter), counter
}

func markRetry(ctx context.Context) {
	if counter, ok := ctx.Value(retryCounterKey{}).(*atomic.Int32); ok {
		counter.Add(1)
	}
}
