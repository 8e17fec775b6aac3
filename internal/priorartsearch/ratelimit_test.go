package priorartsearch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRateLimiterZeroIntervalNeverSleeps(t *testing.T) {
	lim := NewRateLimiter(0)
	lim.sleep = func(context.Context, time.Duration) error {
		t.Fatal("unexpected sleep")
		return nil
	}
	for range 5 {
		if err := lim.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRateLimiterSleepsOnlyRemainder(t *testing.T) {
	lim := NewRateLimiter(1500 * time.Millisecond)
	clock := time.Unix(100, 0)
	var slept []time.Duration
	lim.now = func() time.Time { return clock }
	lim.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		clock = clock.Add(d)
		return nil
	}
	ctx := context.Background()
	_ = lim.Wait(ctx)
	clock = clock.Add(time.Second)
	_ = lim.Wait(ctx)
	clock = clock.Add(2 * time.Second)
	_ = lim.Wait(ctx)
	if len(slept) != 1 || slept[0] != 500*time.Millisecond {
		t.Fatalf("expected a single 500ms wait, got %v", slept)
	}
}

func TestRateLimiterHonorsCancellation(t *testing.T) {
	lim := NewRateLimiter(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	if err := lim.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := lim.Wait(ctx); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestRateLimiterSpacesConcurrentWaiters(t *testing.T) {
	lim := NewRateLimiter(20 * time.Millisecond)
	start := time.Now()
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := lim.Wait(context.Background()); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Fatalf("expected 4 waiters to take at least 3 intervals, took %s", elapsed)
	}
}

func TestRateLimiterQueuedWaiterHonorsDeadline(t *testing.T) {
	lim := NewRateLimiter(500 * time.Millisecond)
	if err := lim.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = lim.Wait(context.Background())
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := lim.Wait(ctx)
	elapsed := time.Since(start)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed > 250*time.Millisecond {
		t.Fatalf("queued waiter returned after %s, want about 30ms", elapsed)
	}
	<-done
}
