package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives a limiter deterministically: sleeps advance the clock
// instead of blocking.
type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func newFakeLimiter(window time.Duration, maxPerWin int, spacing time.Duration) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := newRateLimiter(window, maxPerWin, spacing)
	l.now = func() time.Time { return clock.now }
	l.sleep = func(_ context.Context, d time.Duration) error {
		clock.slept = append(clock.slept, d)
		clock.now = clock.now.Add(d)
		return nil
	}
	return l, clock
}

func TestRateLimiterSpacing(t *testing.T) {
	l, clock := newFakeLimiter(time.Minute, 5, 3*time.Second)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	clock.now = clock.now.Add(1 * time.Second)
	require.NoError(t, l.Acquire(ctx))

	require.Len(t, clock.slept, 1)
	assert.Equal(t, 2*time.Second, clock.slept[0])
	// Effective completion of the second acquire is a full spacing interval
	// after the first.
	assert.Equal(t, 3*time.Second, l.requests[1].Sub(l.requests[0]))
}

func TestRateLimiterWindowFull(t *testing.T) {
	l, clock := newFakeLimiter(time.Minute, 5, 3*time.Second)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(ctx))
		clock.now = clock.now.Add(3 * time.Second)
	}

	err := l.Acquire(ctx)
	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	// Oldest entry is 15s old at this point, so 45s remain in the window.
	assert.Equal(t, 45*time.Second, rle.RetryAfter)
	// The denied call must not consume a slot.
	assert.Len(t, l.requests, 5)
}

func TestRateLimiterWindowPruning(t *testing.T) {
	l, clock := newFakeLimiter(time.Minute, 2, 0)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))

	var rle *RateLimitError
	require.True(t, errors.As(l.Acquire(ctx), &rle))

	clock.now = clock.now.Add(61 * time.Second)
	assert.NoError(t, l.Acquire(ctx))
	assert.Len(t, l.requests, 1)
}

func TestRateLimiterConcurrentCallersKeepSpacing(t *testing.T) {
	// Real clock and sleeps: concurrent callers compute the same wait off
	// the same last-admission time, and only the re-check after waking
	// keeps their admissions apart.
	spacing := 100 * time.Millisecond
	l := newRateLimiter(time.Minute, 10, spacing)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Acquire(ctx))
		}()
	}
	wg.Wait()

	require.Len(t, l.requests, 4)
	for i := 1; i < len(l.requests); i++ {
		gap := l.requests[i].Sub(l.requests[i-1])
		assert.GreaterOrEqual(t, gap, spacing,
			"admissions %d and %d only %v apart", i-1, i, gap)
	}
}

func TestRateLimiterContextCancelledWhileWaiting(t *testing.T) {
	l, _ := newFakeLimiter(time.Minute, 5, 3*time.Second)
	l.sleep = sleepCtx // real sleep, cancelled context

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Acquire(ctx))
	cancel()
	assert.ErrorIs(t, l.Acquire(ctx), context.Canceled)
}
