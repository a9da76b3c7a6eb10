package repository

import (
	"context"
	"errors"

	"github.com/timmy/flatsync/internal/domain"
	"gorm.io/gorm"
)

// RunRepository persists discovery run records.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new RunRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *RunRepository: repository instance bound to db.
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Start inserts a run record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - run: run record to persist; ID must be set.
//
// Returns:
//   - error: a StoreError if the insert fails.
func (r *RunRepository) Start(ctx context.Context, run *domain.DiscoverRun) error {
	if run.Status == "" {
		run.Status = domain.RunStatusRunning
	}
	return wrapStoreError("start run", r.db.WithContext(ctx).Create(run).Error)
}

// Finish saves the final counters and status of a run.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - run: run record with updated fields.
//
// Returns:
//   - error: a StoreError if the update fails.
func (r *RunRepository) Finish(ctx context.Context, run *domain.DiscoverRun) error {
	return wrapStoreError("finish run", r.db.WithContext(ctx).Save(run).Error)
}

// GetByID retrieves a run by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: run identifier.
//
// Returns:
//   - *domain.DiscoverRun: matching run.
//   - error: ErrRunNotFound if no row matches, or a StoreError.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.DiscoverRun, error) {
	var run domain.DiscoverRun
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, wrapStoreError("get run", err)
	}
	return &run, nil
}

// ListRecent returns the newest runs first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of runs; values below 1 mean 20.
//
// Returns:
//   - []domain.DiscoverRun: runs ordered by creation time, newest first.
//   - error: a StoreError if the query fails.
func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]domain.DiscoverRun, error) {
	if limit < 1 {
		limit = 20
	}
	var runs []domain.DiscoverRun
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, wrapStoreError("list runs", err)
	}
	return runs, nil
}
