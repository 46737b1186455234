package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter admits requests against a per-minute ceiling. Acquire blocks
// until a slot is free or the context ends.
type Limiter interface {
	Acquire(ctx context.Context) error
}

const (
	windowLength = time.Minute
	// Small cushion past the oldest timestamp's expiry so a woken caller
	// does not race its own prune.
	windowMargin = 100 * time.Millisecond
)

// SlidingWindow bounds requests to rpm per trailing 60 seconds. Many item
// goroutines hammer it concurrently, so the prune-check-record sequence is
// the one section in the engine that takes an explicit lock. Sleeps happen
// outside the lock; each caller recomputes its wait after waking, which
// gives FIFO-ish ordering without a strict fairness guarantee.
type SlidingWindow struct {
	mu         sync.Mutex
	rpm        int
	timestamps []time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewSlidingWindow(requestsPerMinute int) *SlidingWindow {
	if requestsPerMinute < 1 {
		requestsPerMinute = 1
	}
	return &SlidingWindow{
		rpm:   requestsPerMinute,
		now:   time.Now,
		sleep: sleepContext,
	}
}

func (l *SlidingWindow) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)

		if len(l.timestamps) < l.rpm {
			l.timestamps = append(l.timestamps, now)
			l.mu.Unlock()
			return nil
		}

		wait := windowLength - now.Sub(l.timestamps[0]) + windowMargin
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// prune drops timestamps that have aged out of the window. Caller holds mu.
func (l *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-windowLength)
	idx := 0
	for idx < len(l.timestamps) && !l.timestamps[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[idx:]...)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
