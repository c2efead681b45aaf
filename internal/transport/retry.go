package transport

import "time"

// Retry bounds for idempotent reads.
const (
	DefaultMaxAttempts = 3
	MinAttempts        = 1
	MaxAttempts        = 5
)

// RetryConfig holds retry configuration for idempotent reads.
type RetryConfig struct {
	// MaxAttempts is clamped to [MinAttempts, MaxAttempts].
	MaxAttempts int

	// BackoffStep grows linearly with the attempt number.
	BackoffStep time.Duration

	// MaxBackoff caps a single wait.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns the read retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: DefaultMaxAttempts,
		BackoffStep: 750 * time.Millisecond,
		MaxBackoff:  3 * time.Second,
	}
}

// Attempts returns the clamped attempt ceiling.
func (r RetryConfig) Attempts() int {
	switch {
	case r.MaxAttempts < MinAttempts:
		return MinAttempts
	case r.MaxAttempts > MaxAttempts:
		return MaxAttempts
	default:
		return r.MaxAttempts
	}
}

// Backoff returns the wait after the given failed attempt (1-based):
// min(step × attempt, max).
func (r RetryConfig) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := r.BackoffStep * time.Duration(attempt)
	if r.MaxBackoff > 0 && d > r.MaxBackoff {
		return r.MaxBackoff
	}
	return d
}
