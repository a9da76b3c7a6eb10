package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/flatsync/internal/domain"
	"github.com/timmy/flatsync/internal/retry"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultClaimAttempts = 5

// EnqueueResult tells whether Enqueue created a row.
type EnqueueResult int

const (
	EnqueueInserted EnqueueResult = iota + 1
	EnqueueAlreadyPresent
)

func (r EnqueueResult) String() string {
	switch r {
	case EnqueueInserted:
		return "inserted"
	case EnqueueAlreadyPresent:
		return "already_present"
	default:
		return "unknown"
	}
}

// TaskRepositoryConfig tunes the claim protocol.
type TaskRepositoryConfig struct {
	MaxRetries    int
	ClaimAttempts int
}

// TaskRepository is the task table and the only place status transitions
// are written. Every mutation is a guarded UPDATE, so two workers racing on
// the same row cannot both succeed.
type TaskRepository struct {
	db            *gorm.DB
	policy        retry.Policy
	claimAttempts int
	rowLocks      bool
	now           func() time.Time
}

// NewTaskRepository creates a new TaskRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//   - cfg: retry ceiling and claim attempts; nil uses defaults.
//
// Returns:
//   - *TaskRepository: repository instance bound to db.
func NewTaskRepository(db *gorm.DB, cfg *TaskRepositoryConfig) *TaskRepository {
	if cfg == nil {
		cfg = &TaskRepositoryConfig{MaxRetries: retry.DefaultMaxRetries}
	}
	attempts := cfg.ClaimAttempts
	if attempts <= 0 {
		attempts = defaultClaimAttempts
	}
	return &TaskRepository{
		db:            db,
		policy:        retry.NewPolicy(cfg.MaxRetries),
		claimAttempts: attempts,
		rowLocks:      db.Dialector.Name() == "postgres",
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Policy returns the retry policy the repository applies on failure.
func (r *TaskRepository) Policy() retry.Policy {
	return r.policy
}

// Enqueue inserts a pending task unless the key already exists.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - fileKey: remote object key.
//
// Returns:
//   - EnqueueResult: EnqueueInserted or EnqueueAlreadyPresent.
//   - error: ErrInvalidFileKey or a StoreError.
func (r *TaskRepository) Enqueue(ctx context.Context, fileKey string) (EnqueueResult, error) {
	if strings.TrimSpace(fileKey) == "" {
		return 0, ErrInvalidFileKey
	}

	now := r.now()
	task := &domain.Task{
		FileKey:   fileKey,
		Status:    domain.TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_key"}},
		DoNothing: true,
	}).Create(task)
	if res.Error != nil {
		return 0, wrapStoreError("enqueue", res.Error)
	}
	if res.RowsAffected == 0 {
		return EnqueueAlreadyPresent, nil
	}
	return EnqueueInserted, nil
}

// ClaimNext moves the oldest eligible task to claimed and stamps workerID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - workerID: identifier of the claiming worker.
//
// Returns:
//   - *domain.Task: the claimed task, or nil when nothing is eligible.
//   - error: non-nil StoreError if the store could not be reached.
func (r *TaskRepository) ClaimNext(ctx context.Context, workerID string) (*domain.Task, error) {
	if workerID == "" {
		return nil, fmt.Errorf("claim: worker id is required")
	}

	for attempt := 0; attempt < r.claimAttempts; attempt++ {
		task, err := r.tryClaim(ctx, workerID)
		if errors.Is(err, errClaimConflict) {
			continue
		}
		return task, err
	}
	return nil, nil
}

func (r *TaskRepository) tryClaim(ctx context.Context, workerID string) (*domain.Task, error) {
	var claimed *domain.Task

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("status = ? OR (status IN ? AND retry_count <= ?)",
			domain.TaskStatusPending, domain.RetryableStatuses, r.policy.MaxRetries).
			Order("created_at ASC").
			Order("id ASC")
		if r.rowLocks {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var candidate domain.Task
		if err := q.Take(&candidate).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		now := r.now()
		res := tx.Model(&domain.Task{}).
			Where("id = ? AND status = ? AND retry_count = ?", candidate.ID, candidate.Status, candidate.RetryCount).
			Updates(map[string]interface{}{
				"status":     domain.TaskStatusClaimed,
				"worker_id":  workerID,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return errClaimConflict
		}

		candidate.Status = domain.TaskStatusClaimed
		candidate.WorkerID = &workerID
		candidate.UpdatedAt = now
		claimed = &candidate
		return nil
	})
	if err != nil {
		if errors.Is(err, errClaimConflict) {
			return nil, err
		}
		return nil, wrapStoreError("claim", err)
	}
	return claimed, nil
}

// RecordProgress advances an owned task through an intermediate stage
// (claimed -> fetched). retry_count is untouched and error_message cleared.
func (r *TaskRepository) RecordProgress(ctx context.Context, fileKey, workerID string, next domain.TaskStatus) error {
	if next != domain.TaskStatusFetched {
		return fmt.Errorf("%w: %s is not an intermediate status", ErrInvalidTransition, next)
	}
	prior := domain.TaskStatusClaimed

	res := r.db.WithContext(ctx).Model(&domain.Task{}).
		Where("file_key = ? AND status = ? AND worker_id = ?", fileKey, prior, workerID).
		Updates(map[string]interface{}{
			"status":        next,
			"error_message": nil,
			"updated_at":    r.now(),
		})
	if res.Error != nil {
		return wrapStoreError("record progress", res.Error)
	}
	if res.RowsAffected == 0 {
		return r.explainMiss(ctx, fileKey)
	}
	return nil
}

// RecordSuccess completes an owned, fetched task.
func (r *TaskRepository) RecordSuccess(ctx context.Context, fileKey, workerID string) error {
	now := r.now()
	res := r.db.WithContext(ctx).Model(&domain.Task{}).
		Where("file_key = ? AND status = ? AND worker_id = ?", fileKey, domain.TaskStatusFetched, workerID).
		Updates(map[string]interface{}{
			"status":        domain.TaskStatusCompleted,
			"worker_id":     nil,
			"error_message": nil,
			"completed_at":  now,
			"updated_at":    now,
		})
	if res.Error != nil {
		return wrapStoreError("record success", res.Error)
	}
	if res.RowsAffected == 0 {
		return r.explainMiss(ctx, fileKey)
	}
	return nil
}

// RecordFailure applies the retry policy to an owned task that failed in
// stage. It is the only writer of retry_count.
// Returns:
//   - retry.Decision: the status and retry count written.
//   - error: ErrTaskNotFound, ErrStaleTransition or a StoreError.
func (r *TaskRepository) RecordFailure(ctx context.Context, fileKey, workerID string, stage domain.Stage, message string) (retry.Decision, error) {
	var decision retry.Decision

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := r.lockByFileKey(tx, fileKey)
		if err != nil {
			return err
		}
		if task.Status != stage.RunningStatus() || task.Owner() != workerID {
			return ErrStaleTransition
		}
		decision, err = r.applyFailure(tx, task, stage, message)
		return err
	})
	if err != nil {
		return retry.Decision{}, r.classify("record failure", err)
	}
	return decision, nil
}

// ReleaseStale fails in-progress tasks untouched for longer than olderThan,
// as if their owner had reported a failure of the running stage. Workers
// that crash mid-task otherwise keep their rows claimed forever.
// Returns the number of tasks released.
func (r *TaskRepository) ReleaseStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := r.now().Add(-olderThan)

	var stale []domain.Task
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []domain.TaskStatus{domain.TaskStatusClaimed, domain.TaskStatusFetched}, cutoff).
		Order("updated_at ASC").
		Find(&stale).Error; err != nil {
		return 0, wrapStoreError("list stale", err)
	}

	released := 0
	for _, candidate := range stale {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			task, err := r.lockByFileKey(tx, candidate.FileKey)
			if err != nil {
				return err
			}
			stage, ok := domain.StageOf(task.Status)
			if !ok || !task.UpdatedAt.Before(cutoff) {
				return ErrStaleTransition
			}
			_, err = r.applyFailure(tx, task, stage, fmt.Sprintf("lease expired: no progress from %s since %s",
				task.Owner(), task.UpdatedAt.Format(time.RFC3339)))
			return err
		})
		switch {
		case err == nil:
			released++
		case errors.Is(err, ErrStaleTransition), errors.Is(err, gorm.ErrRecordNotFound):
			// progressed or finished since the scan
		default:
			return released, wrapStoreError("release stale", err)
		}
	}
	return released, nil
}

// applyFailure writes the policy decision with a guard on the values read.
func (r *TaskRepository) applyFailure(tx *gorm.DB, task *domain.Task, stage domain.Stage, message string) (retry.Decision, error) {
	decision := r.policy.Decide(stage, task.RetryCount)

	res := tx.Model(&domain.Task{}).
		Where("id = ? AND status = ? AND retry_count = ?", task.ID, task.Status, task.RetryCount).
		Updates(map[string]interface{}{
			"status":        decision.Status,
			"retry_count":   decision.RetryCount,
			"worker_id":     nil,
			"error_message": message,
			"updated_at":    r.now(),
		})
	if res.Error != nil {
		return retry.Decision{}, res.Error
	}
	if res.RowsAffected != 1 {
		return retry.Decision{}, ErrStaleTransition
	}
	return decision, nil
}

func (r *TaskRepository) lockByFileKey(tx *gorm.DB, fileKey string) (*domain.Task, error) {
	q := tx.Where("file_key = ?", fileKey)
	if r.rowLocks {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var task domain.Task
	if err := q.Take(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

// explainMiss turns a zero-row guarded update into a precise error.
func (r *TaskRepository) explainMiss(ctx context.Context, fileKey string) error {
	if _, err := r.GetByFileKey(ctx, fileKey); err != nil {
		return err
	}
	return ErrStaleTransition
}

func (r *TaskRepository) classify(op string, err error) error {
	switch {
	case errors.Is(err, ErrTaskNotFound), errors.Is(err, ErrStaleTransition):
		return err
	default:
		return wrapStoreError(op, err)
	}
}

// GetByFileKey retrieves a task by its file key.
func (r *TaskRepository) GetByFileKey(ctx context.Context, fileKey string) (*domain.Task, error) {
	var task domain.Task
	if err := r.db.WithContext(ctx).Where("file_key = ?", fileKey).Take(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, wrapStoreError("get task", err)
	}
	return &task, nil
}

// GetByID retrieves a task by its row ID.
func (r *TaskRepository) GetByID(ctx context.Context, id uint) (*domain.Task, error) {
	var task domain.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, wrapStoreError("get task", err)
	}
	return &task, nil
}

// ListByStatus retrieves tasks in a status, oldest first, with pagination.
func (r *TaskRepository) ListByStatus(ctx context.Context, status domain.TaskStatus, limit, offset int) ([]domain.Task, error) {
	var tasks []domain.Task
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&tasks).Error; err != nil {
		return nil, wrapStoreError("list tasks", err)
	}
	return tasks, nil
}

// CountByStatus returns the number of tasks per status; every status is present.
func (r *TaskRepository) CountByStatus(ctx context.Context) (map[domain.TaskStatus]int64, error) {
	var rows []struct {
		Status domain.TaskStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&domain.Task{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, wrapStoreError("count tasks", err)
	}

	counts := make(map[domain.TaskStatus]int64, len(domain.AllTaskStatuses))
	for _, s := range domain.AllTaskStatuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
