package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for failures that carry no extra data.
var (
	// ErrSearchUnavailable means every search tier failed or returned no
	// usable results.
	ErrSearchUnavailable = errors.New("search unavailable: all tiers failed or returned no results")

	// ErrRenderingFailed means HTML conversion produced empty or
	// implausibly short output.
	ErrRenderingFailed = errors.New("rendering produced degenerate output")
)

// FailureReason classifies an upstream LLM failure so callers can
// distinguish timeouts from quota exhaustion without parsing messages.
type FailureReason string

const (
	ReasonTimeout     FailureReason = "timeout"
	ReasonRateLimited FailureReason = "rate_limited"
	ReasonQuota       FailureReason = "quota_exceeded"
	ReasonMalformed   FailureReason = "malformed_response"
	ReasonUpstream    FailureReason = "upstream_error"
)

// RateLimitError is returned when the search-API window is already full.
// RetryAfter is the wait until the oldest window entry expires.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Millisecond))
}

// GenerationError wraps an LLM failure with its classified reason.
type GenerationError struct {
	Reason FailureReason
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("generation failed (%s)", e.Reason)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ContentTooShortError is returned when a report (or a deep-mode section)
// still misses its word-count floor after the retry cap.
type ContentTooShortError struct {
	Actual  int
	Minimum int
}

func (e *ContentTooShortError) Error() string {
	return fmt.Sprintf("generated content too short: %d words, minimum %d", e.Actual, e.Minimum)
}

// InvalidCitationError is returned by strict citation resolution when the
// text references source ids that do not exist.
type InvalidCitationError struct {
	IDs []string
}

func (e *InvalidCitationError) Error() string {
	return fmt.Sprintf("invalid citations: [%s]", strings.Join(e.IDs, ", "))
}
