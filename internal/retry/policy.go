// Package retry decides what a failed transfer attempt turns into.
package retry

import "github.com/timmy/flatsync/internal/domain"

// DefaultMaxRetries is the retry ceiling used when none is configured.
const DefaultMaxRetries = 2

// Policy maps a failure to the next task status.
type Policy struct {
	MaxRetries int
}

// Decision is the outcome of a failed attempt.
type Decision struct {
	Status     domain.TaskStatus
	RetryCount int
	Terminal   bool
}

// NewPolicy returns a policy with the given ceiling; negative values mean no retries.
func NewPolicy(maxRetries int) Policy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return Policy{MaxRetries: maxRetries}
}

// Decide maps the failing stage and the retries already consumed to the next
// status. A retry is granted while retryCount+1 <= MaxRetries and consumes one
// unit of retry_count; once the ceiling is reached the task becomes
// permanent_failure and retry_count stays at the ceiling.
func (p Policy) Decide(stage domain.Stage, retryCount int) Decision {
	if retryCount+1 <= p.MaxRetries {
		return Decision{
			Status:     stage.FailureStatus(),
			RetryCount: retryCount + 1,
		}
	}
	return Decision{
		Status:     domain.TaskStatusPermanentFailure,
		RetryCount: retryCount,
		Terminal:   true,
	}
}

// Eligible reports whether a row in this state may be claimed.
func (p Policy) Eligible(status domain.TaskStatus, retryCount int) bool {
	switch {
	case status == domain.TaskStatusPending:
		return true
	case status.IsRetryable():
		return retryCount <= p.MaxRetries
	default:
		return false
	}
}
