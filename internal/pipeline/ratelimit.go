package pipeline

import (
	"context"
	"sync"
	"time"
)

const (
	rateWindow     = 60 * time.Second
	rateMaxPerWin  = 5
	rateMinSpacing = 3 * time.Second
)

// RateLimiter gates outbound search-API calls by count-per-window and
// minimum inter-request spacing. One instance is shared per process; the
// timestamp queue is owned by the mutex, never touched outside it.
type RateLimiter struct {
	mu         sync.Mutex
	window     time.Duration
	maxPerWin  int
	minSpacing time.Duration

	requests []time.Time
	last     time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter returns a limiter with the production search-API budget:
// 5 requests per 60s window, 3s apart.
func NewRateLimiter() *RateLimiter {
	return newRateLimiter(rateWindow, rateMaxPerWin, rateMinSpacing)
}

func newRateLimiter(window time.Duration, maxPerWin int, minSpacing time.Duration) *RateLimiter {
	return &RateLimiter{
		window:     window,
		maxPerWin:  maxPerWin,
		minSpacing: minSpacing,
		now:        time.Now,
		sleep:      sleepCtx,
	}
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

// Acquire blocks until a request may be issued, or fails fast with a
// *RateLimitError carrying the wait until the window frees up. Spacing
// violations are absorbed by sleeping; a full window is not.
//
// The spacing check loops: another caller may have been admitted while
// this one slept with the mutex released, so the delta against the
// updated last-admission time is re-evaluated before recording.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	for {
		now := l.now()
		l.prune(now)

		wait := time.Duration(0)
		if !l.last.IsZero() {
			wait = l.minSpacing - now.Sub(l.last)
		}
		if wait <= 0 {
			if len(l.requests) >= l.maxPerWin {
				var retryAfter time.Duration
				if len(l.requests) > 0 {
					retryAfter = l.requests[0].Add(l.window).Sub(now)
				}
				if retryAfter < 0 {
					retryAfter = 0
				}
				l.mu.Unlock()
				return &RateLimitError{RetryAfter: retryAfter}
			}
			l.requests = append(l.requests, now)
			l.last = now
			l.mu.Unlock()
			return nil
		}

		l.mu.Unlock()
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
		l.mu.Lock()
	}
}

// prune drops timestamps older than the window. Caller holds the mutex.
func (l *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.requests) && !l.requests[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.requests = append(l.requests[:0], l.requests[i:]...)
	}
}
