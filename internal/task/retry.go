package task

import (
	"time"

	"github.com/reelsong/reelsong-api/internal/domain"
)

// RetryDecision is the outcome of consulting the retry policy after a failed
// pipeline run.
type RetryDecision struct {
	// Retry indicates the run should be re-queued.
	Retry bool

	// Delay is how long to wait before the re-queued run becomes eligible.
	Delay time.Duration
}

// RetryPolicy decides whether a failed pipeline run is re-attempted.
// Non-retryable kinds give up immediately regardless of attempt count;
// retryable kinds retry up to a fixed ceiling with a fixed delay between
// attempts.
type RetryPolicy struct {
	// MaxAttempts is the total attempt ceiling, including the first run.
	MaxAttempts int

	// Delay is the fixed wait between attempts.
	Delay time.Duration
}

// DefaultRetryPolicy returns the policy the pipeline was tuned with:
// 3 attempts with a 5 second delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       5 * time.Second,
	}
}

// Decide returns the retry decision for a failure of the given kind on the
// given attempt (1-based).
func (p RetryPolicy) Decide(kind domain.ErrorKind, attempt int) RetryDecision {
	if !kind.Retryable() {
		return RetryDecision{}
	}
	if attempt >= p.MaxAttempts {
		return RetryDecision{}
	}
	return RetryDecision{Retry: true, Delay: p.Delay}
}
