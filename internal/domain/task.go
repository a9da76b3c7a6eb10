package domain

import "time"

// TaskStatus represents the lifecycle stage of a transfer task.
// Values include TaskStatusPending, TaskStatusClaimed, TaskStatusFetched,
// TaskStatusCompleted, TaskStatusFailedFetch, TaskStatusFailedPush and
// TaskStatusPermanentFailure.
type TaskStatus string

const (
	TaskStatusPending          TaskStatus = "pending"
	TaskStatusClaimed          TaskStatus = "claimed"
	TaskStatusFetched          TaskStatus = "fetched"
	TaskStatusCompleted        TaskStatus = "completed"
	TaskStatusFailedFetch      TaskStatus = "failed_fetch"
	TaskStatusFailedPush       TaskStatus = "failed_push"
	TaskStatusPermanentFailure TaskStatus = "permanent_failure"
)

// AllTaskStatuses lists every status in lifecycle order.
var AllTaskStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusClaimed,
	TaskStatusFetched,
	TaskStatusCompleted,
	TaskStatusFailedFetch,
	TaskStatusFailedPush,
	TaskStatusPermanentFailure,
}

// RetryableStatuses are the failure statuses a worker may claim again.
var RetryableStatuses = []TaskStatus{
	TaskStatusFailedFetch,
	TaskStatusFailedPush,
}

var allowedTransitions = map[TaskStatus]map[TaskStatus]struct{}{
	TaskStatusPending: {
		TaskStatusClaimed: {},
	},
	TaskStatusClaimed: {
		TaskStatusFetched:          {},
		TaskStatusFailedFetch:      {},
		TaskStatusPermanentFailure: {},
	},
	TaskStatusFetched: {
		TaskStatusCompleted:        {},
		TaskStatusFailedPush:       {},
		TaskStatusPermanentFailure: {},
	},
	TaskStatusFailedFetch: {
		TaskStatusClaimed: {},
	},
	TaskStatusFailedPush: {
		TaskStatusClaimed: {},
	},
}

// ParseTaskStatus validates a status string.
func ParseTaskStatus(s string) (TaskStatus, bool) {
	for _, st := range AllTaskStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// CanTransition reports whether from -> to is an edge of the status machine.
// Terminal statuses have no outgoing edges.
func CanTransition(from, to TaskStatus) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// IsTerminal reports whether the status is never mutated again.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusPermanentFailure
}

// IsRetryable reports whether the status is a re-claimable failure.
func (s TaskStatus) IsRetryable() bool {
	return s == TaskStatusFailedFetch || s == TaskStatusFailedPush
}

// IsInProgress reports whether a worker owns the task.
func (s TaskStatus) IsInProgress() bool {
	return s == TaskStatusClaimed || s == TaskStatusFetched
}

// Stage identifies which half of the transfer an attempt was in.
type Stage string

const (
	StageFetch Stage = "fetch"
	StagePush  Stage = "push"
)

// RunningStatus is the status a task holds while the stage executes.
func (s Stage) RunningStatus() TaskStatus {
	if s == StagePush {
		return TaskStatusFetched
	}
	return TaskStatusClaimed
}

// FailureStatus is the retryable status recorded when the stage fails.
func (s Stage) FailureStatus() TaskStatus {
	if s == StagePush {
		return TaskStatusFailedPush
	}
	return TaskStatusFailedFetch
}

// StageOf maps an in-progress status to the stage running from it.
func StageOf(status TaskStatus) (Stage, bool) {
	switch status {
	case TaskStatusClaimed:
		return StageFetch, true
	case TaskStatusFetched:
		return StagePush, true
	default:
		return "", false
	}
}

// Task is one remote file moving from the source store to the destination.
type Task struct {
	ID           uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	FileKey      string     `gorm:"type:text;not null;uniqueIndex:idx_tasks_file_key" json:"file_key"`
	Status       TaskStatus `gorm:"type:text;not null;default:pending;index:idx_tasks_status_retry,priority:1" json:"status"`
	RetryCount   int        `gorm:"not null;default:0;index:idx_tasks_status_retry,priority:2" json:"retry_count"`
	WorkerID     *string    `gorm:"type:text;index:idx_tasks_worker" json:"worker_id,omitempty"`
	ErrorMessage *string    `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time  `gorm:"not null;index:idx_tasks_created" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null" json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// TableName returns the database table name for Task.
func (Task) TableName() string {
	return "tasks"
}

// Owner returns the worker ID or an empty string.
func (t *Task) Owner() string {
	if t.WorkerID == nil {
		return ""
	}
	return *t.WorkerID
}
