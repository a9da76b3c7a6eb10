package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/flatsync/internal/domain"
	"github.com/timmy/flatsync/internal/logger"
	"github.com/timmy/flatsync/internal/repository"
)

// TaskEnqueuer is the part of the task store the discoverer writes to.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, fileKey string) (repository.EnqueueResult, error)
}

// RunRecorder persists discovery run records.
type RunRecorder interface {
	Start(ctx context.Context, run *domain.DiscoverRun) error
	Finish(ctx context.Context, run *domain.DiscoverRun) error
}

// DiscovererService registers candidate files as pending tasks.
type DiscovererService struct {
	tasks    TaskEnqueuer
	resolver *CandidateResolver
	runs     RunRecorder
	logger   *logger.Logger
}

// DiscoverStats holds statistics for a discovery run
type DiscoverStats struct {
	RunID          string        `json:"run_id"`
	Candidates     int           `json:"candidates"`
	Inserted       int           `json:"inserted"`
	AlreadyPresent int           `json:"already_present"`
	Invalid        int           `json:"invalid"`
	Duration       time.Duration `json:"duration_ns"`
}

// NewDiscovererService creates a new discoverer service
func NewDiscovererService(tasks TaskEnqueuer, resolver *CandidateResolver, log *logger.Logger) *DiscovererService {
	if log == nil {
		log = logger.GetDefault()
	}
	return &DiscovererService{
		tasks:    tasks,
		resolver: resolver,
		logger:   log.WithField(logger.FieldComponent, "discoverer"),
	}
}

// WithRunRecorder makes every run leave a record in runs.
// Recording failures are logged and never fail the run.
func (s *DiscovererService) WithRunRecorder(runs RunRecorder) *DiscovererService {
	s.runs = runs
	return s
}

// Discover resolves req into candidate keys and enqueues them.
func (s *DiscovererService) Discover(ctx context.Context, req *CandidateRequest) (*DiscoverStats, error) {
	if s.resolver == nil {
		return nil, fmt.Errorf("discoverer has no candidate resolver")
	}
	runID := uuid.New().String()
	ctx = s.logger.WithField(logger.FieldRunID, runID).WithContext(ctx)

	logger.FromContext(ctx).WithFields(logger.Fields{
		"mode":       req.Mode,
		"start_date": req.StartDate,
		"end_date":   req.EndDate,
	}).Info("Discoverer running")

	candidates, err := s.resolver.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, runID, string(req.Mode), candidates)
}

// Run enqueues each candidate; existing keys are left untouched, so
// overlapping runs are harmless. It stops at the first store error and
// returns the partial stats.
func (s *DiscovererService) Run(ctx context.Context, candidates []string) (*DiscoverStats, error) {
	runID := uuid.New().String()
	ctx = s.logger.WithField(logger.FieldRunID, runID).WithContext(ctx)
	return s.run(ctx, runID, string(ModeKeys), candidates)
}

func (s *DiscovererService) run(ctx context.Context, runID, mode string, candidates []string) (stats *DiscoverStats, err error) {
	start := time.Now()
	stats = &DiscoverStats{RunID: runID, Candidates: len(candidates)}
	log := logger.FromContext(ctx)

	if s.runs != nil {
		record := &domain.DiscoverRun{ID: runID, Mode: mode, StartedAt: start}
		if rerr := s.runs.Start(ctx, record); rerr != nil {
			log.WithError(rerr).Warn("Failed to record discovery run start")
		} else {
			defer func() { s.finishRecord(ctx, record, stats, err) }()
		}
	}

	if len(candidates) == 0 {
		log.Info("No files discovered to process for the given mode/parameters")
		return stats, nil
	}

	for _, key := range candidates {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}

		res, err := s.tasks.Enqueue(ctx, key)
		switch {
		case err == nil:
		case errors.Is(err, repository.ErrInvalidFileKey):
			stats.Invalid++
			log.WithField(logger.FieldFileKey, key).Warn("Skipping invalid file key")
			continue
		default:
			stats.Duration = time.Since(start)
			log.WithError(err).WithField(logger.FieldFileKey, key).Error("Failed to enqueue task")
			return stats, fmt.Errorf("enqueue %s: %w", key, err)
		}

		if res == repository.EnqueueInserted {
			stats.Inserted++
			log.WithField(logger.FieldFileKey, key).Debug("Task enqueued")
		} else {
			stats.AlreadyPresent++
		}
	}

	stats.Duration = time.Since(start)
	logger.With(logger.Fields{
		"inserted":        stats.Inserted,
		"already_present": stats.AlreadyPresent,
		"invalid":         stats.Invalid,
	}).WithCount(stats.Candidates).WithDuration(stats.Duration).
		Info(ctx, "Discoverer finished")
	return stats, nil
}

func (s *DiscovererService) finishRecord(ctx context.Context, record *domain.DiscoverRun, stats *DiscoverStats, runErr error) {
	now := time.Now()
	record.Candidates = stats.Candidates
	record.Inserted = stats.Inserted
	record.AlreadyPresent = stats.AlreadyPresent
	record.Invalid = stats.Invalid
	record.CompletedAt = &now
	record.Status = domain.RunStatusCompleted
	if runErr != nil {
		record.Status = domain.RunStatusFailed
		record.ErrorLog = runErr.Error()
	}

	// The run may have stopped because ctx was canceled
	if err := s.runs.Finish(context.WithoutCancel(ctx), record); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to record discovery run result")
	}
}
