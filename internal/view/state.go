package view

import (
	"fmt"
	"math"
	"time"
)

// Scope identifies an independent read.
type Scope string

const (
	ScopeTickets Scope = "tickets"
	ScopeStats   Scope = "stats"
)

// Phase is the lifecycle of a read scope.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseLoading  Phase = "loading"
	PhaseLoaded   Phase = "loaded"
	PhaseRetrying Phase = "retrying"
)

// Retry schedule for failed reads.
const (
	retryBase  = 2500 * time.Millisecond
	retryStep  = 1500 * time.Millisecond
	retryLimit = 15 * time.Second
)

// RetryDelay returns the wait before retrying after the given number of
// earlier consecutive failures.
func RetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := retryBase + time.Duration(attempt)*retryStep
	if d > retryLimit {
		return retryLimit
	}
	return d
}

// ReadState is the presentation state of one scope.
type ReadState struct {
	Phase     Phase      `json:"phase"`
	RequestID uint64     `json:"request_id"`
	Failures  int        `json:"failures"`
	Notice    string     `json:"notice,omitempty"`
	Error     string     `json:"error,omitempty"`
	RetryAt   *time.Time `json:"retry_at,omitempty"`
	LoadedAt  *time.Time `json:"loaded_at,omitempty"`
}

func subject(scope Scope) string {
	if scope == ScopeStats {
		return "dashboard stats"
	}
	return "tickets"
}

// recoveryMessage words the notice for a transient read failure.
func recoveryMessage(scope Scope, online bool, failures int, delay time.Duration) string {
	secs := int(math.Ceil(delay.Seconds()))
	switch {
	case !online:
		return fmt.Sprintf("You are offline. Showing the last loaded %s; retrying in %ds.", subject(scope), secs)
	case failures <= 2:
		return fmt.Sprintf("Having trouble loading %s. Retrying in %ds.", subject(scope), secs)
	default:
		return fmt.Sprintf("The server is taking longer than usual, it may be waking up. Retrying %s in %ds.", subject(scope), secs)
	}
}
