package pipeline

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is the bounded retry-with-backoff applied to every flaky
// upstream call site (search tiers, LLM calls). One policy value is shared
// per component so the schedule stays uniform.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy covers the common case: three attempts, exponential
// backoff starting at one second.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     3,
	InitialInterval: 1 * time.Second,
	MaxInterval:     10 * time.Second,
}

// Do runs op under the policy, stopping early if ctx is cancelled.
// Wrap an error with Permanent to stop retrying immediately.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx))
}

// Permanent marks err as non-retryable for RetryPolicy.Do.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
