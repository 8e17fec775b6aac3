package priorartsearch

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces requests so that consecutive calls to Wait return at
// least interval apart. Each caller reserves its slot under the lock and
// sleeps outside it, so a queued caller still sees its own cancellation.
// A zero interval never blocks.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval, now: time.Now, sleep: sleepCtx}
}

func (r *RateLimiter) Interval() time.Duration {
	if r == nil {
		return 0
	}
	return r.interval
}

func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r == nil || r.interval <= 0 {
		return nil
	}
	r.mu.Lock()
	now := r.now()
	next := now
	if !r.last.IsZero() {
		if t := r.last.Add(r.interval); t.After(next) {
			next = t
		}
	}
	r.last = next
	r.mu.Unlock()
	if wait := next.Sub(now); wait > 0 {
		return r.sleep(ctx, wait)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
