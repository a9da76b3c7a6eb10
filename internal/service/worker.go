package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/timmy/flatsync/internal/destination"
	"github.com/timmy/flatsync/internal/domain"
	"github.com/timmy/flatsync/internal/logger"
	"github.com/timmy/flatsync/internal/repository"
	"github.com/timmy/flatsync/internal/retry"
	"github.com/timmy/flatsync/internal/source"
)

// TaskStore is the part of the task store a worker drives.
type TaskStore interface {
	ClaimNext(ctx context.Context, workerID string) (*domain.Task, error)
	RecordProgress(ctx context.Context, fileKey, workerID string, next domain.TaskStatus) error
	RecordFailure(ctx context.Context, fileKey, workerID string, stage domain.Stage, message string) (retry.Decision, error)
	RecordSuccess(ctx context.Context, fileKey, workerID string) error
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// WorkerConfig holds configuration for one worker loop
type WorkerConfig struct {
	ID              string
	TempDir         string
	PollInterval    time.Duration
	StoreRetryDelay time.Duration
	ReportTimeout   time.Duration
	StaleAfter      time.Duration
}

// WorkerStats counts what a worker loop did.
type WorkerStats struct {
	Claimed       int64 `json:"claimed"`
	Completed     int64 `json:"completed"`
	FetchFailures int64 `json:"fetch_failures"`
	PushFailures  int64 `json:"push_failures"`
	StoreErrors   int64 `json:"store_errors"`
}

// WorkerService claims tasks one at a time and moves each file from the
// source to the destination.
type WorkerService struct {
	store   TaskStore
	fetcher source.Fetcher
	pusher  destination.Pusher
	cfg     WorkerConfig
	logger  *logger.Logger

	claimed       atomic.Int64
	completed     atomic.Int64
	fetchFailures atomic.Int64
	pushFailures  atomic.Int64
	storeErrors   atomic.Int64
}

// NewWorkerService creates a new worker service.
// Parameters:
//   - store: shared task store.
//   - fetcher: source capability.
//   - pusher: destination capability.
//   - log: base logger; nil uses the default.
//   - cfg: worker identity, temp dir and timings.
//
// Returns:
//   - *WorkerService: worker ready to Run.
//   - error: non-nil if the worker ID is empty or the temp dir cannot be created.
func NewWorkerService(store TaskStore, fetcher source.Fetcher, pusher destination.Pusher, log *logger.Logger, cfg WorkerConfig) (*WorkerService, error) {
	if cfg.ID == "" {
		return nil, errors.New("worker id is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.StoreRetryDelay <= 0 {
		cfg.StoreRetryDelay = 2 * time.Second
	}
	if cfg.ReportTimeout <= 0 {
		cfg.ReportTimeout = 2 * time.Minute
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir %s: %w", cfg.TempDir, err)
	}
	if log == nil {
		log = logger.GetDefault()
	}

	return &WorkerService{
		store:   store,
		fetcher: fetcher,
		pusher:  pusher,
		cfg:     cfg,
		logger: log.WithFields(logger.Fields{
			logger.FieldComponent: "worker",
			logger.FieldWorkerID:  cfg.ID,
		}),
	}, nil
}

// ID returns the worker identifier stamped on claimed tasks.
func (w *WorkerService) ID() string {
	return w.cfg.ID
}

// Stats returns a snapshot of the worker's counters.
func (w *WorkerService) Stats() WorkerStats {
	return WorkerStats{
		Claimed:       w.claimed.Load(),
		Completed:     w.completed.Load(),
		FetchFailures: w.fetchFailures.Load(),
		PushFailures:  w.pushFailures.Load(),
		StoreErrors:   w.storeErrors.Load(),
	}
}

// Run polls for tasks until ctx is canceled. Cancellation is checked
// between iterations; a task already claimed is finished and reported.
func (w *WorkerService) Run(ctx context.Context) error {
	ctx = w.logger.WithContext(ctx)
	log := logger.FromContext(ctx)
	log.WithFields(logger.Fields{
		"poll_interval": w.cfg.PollInterval.String(),
		"temp_dir":      w.cfg.TempDir,
	}).Info("Worker starting main loop")

	for {
		if ctx.Err() != nil {
			logger.With(logger.Fields{
				"claimed":        w.claimed.Load(),
				"completed":      w.completed.Load(),
				"fetch_failures": w.fetchFailures.Load(),
				"push_failures":  w.pushFailures.Load(),
			}).Info(ctx, "Worker has shut down")
			return nil
		}

		processed, err := w.RunOnce(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				continue
			}
			log.WithError(err).Warn("Task store unavailable, retrying")
			sleepCtx(ctx, w.cfg.StoreRetryDelay)
		case !processed:
			sleepCtx(ctx, w.cfg.PollInterval)
		}
	}
}

// RunOnce claims and processes at most one task. It reports whether a task
// was claimed; the error is always a store error from claiming.
func (w *WorkerService) RunOnce(ctx context.Context) (bool, error) {
	if logger.GetWorkerID(ctx) == "" {
		ctx = w.logger.WithContext(ctx)
	}

	if w.cfg.StaleAfter > 0 {
		w.releaseStale(ctx)
	}

	task, err := w.store.ClaimNext(ctx, w.cfg.ID)
	if err != nil {
		w.storeErrors.Add(1)
		return false, err
	}
	if task == nil {
		logger.FromContext(ctx).Debug("No claimable task")
		return false, nil
	}

	w.claimed.Add(1)
	w.process(context.WithoutCancel(ctx), task)
	return true, nil
}

func (w *WorkerService) releaseStale(ctx context.Context) {
	n, err := w.store.ReleaseStale(ctx, w.cfg.StaleAfter)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to release stale tasks")
		return
	}
	if n > 0 {
		logger.With(nil).WithCount(n).Warn(ctx, "Released tasks whose lease expired")
	}
}

// process runs both stages for a claimed task. Every failure, including a
// panic, ends in RecordFailure so the task never stays in progress.
func (w *WorkerService) process(ctx context.Context, task *domain.Task) {
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldTaskID:     task.ID,
		logger.FieldFileKey:    task.FileKey,
		logger.FieldRetryCount: task.RetryCount,
	})
	log := logger.FromContext(ctx)
	start := time.Now()

	stage := domain.StageFetch
	finished := false
	var local string

	defer func() {
		if local != "" {
			if err := os.Remove(local); err != nil && !os.IsNotExist(err) {
				log.WithError(err).WithField("path", local).Warn("Failed to clean up local file")
			}
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			log.WithField(logger.FieldStage, stage).Errorf("Panic while processing task: %v", r)
			if !finished {
				w.fail(ctx, task, stage, fmt.Errorf("panic: %v", r))
			}
		}
	}()

	log.Info("Processing task")

	path, err := w.fetcher.Fetch(ctx, task.FileKey, w.cfg.TempDir)
	if err != nil {
		w.fail(ctx, task, domain.StageFetch, err)
		return
	}
	local = path

	if err := w.report(ctx, func(ctx context.Context) error {
		return w.store.RecordProgress(ctx, task.FileKey, w.cfg.ID, domain.TaskStatusFetched)
	}); err != nil {
		w.reportFailed(ctx, "record progress", err)
		return
	}
	log.WithField("path", local).Info("Fetched file from source")

	stage = domain.StagePush
	if err := w.pusher.Push(ctx, local, task.FileKey); err != nil {
		w.fail(ctx, task, domain.StagePush, err)
		return
	}

	if err := w.report(ctx, func(ctx context.Context) error {
		return w.store.RecordSuccess(ctx, task.FileKey, w.cfg.ID)
	}); err != nil {
		w.reportFailed(ctx, "record success", err)
		return
	}
	finished = true
	w.completed.Add(1)

	entry := logger.With(nil).WithDuration(time.Since(start)).WithStatus(string(domain.TaskStatusCompleted))
	if info, err := os.Stat(local); err == nil {
		entry = entry.WithSize(info.Size())
	}
	entry.Info(ctx, "Task completed")
}

// fail records a stage failure through the retry policy.
func (w *WorkerService) fail(ctx context.Context, task *domain.Task, stage domain.Stage, cause error) {
	if stage == domain.StagePush {
		w.pushFailures.Add(1)
	} else {
		w.fetchFailures.Add(1)
	}

	log := logger.FromContext(ctx).WithField(logger.FieldStage, stage).WithError(cause)

	var decision retry.Decision
	err := w.report(ctx, func(ctx context.Context) error {
		var err error
		decision, err = w.store.RecordFailure(ctx, task.FileKey, w.cfg.ID, stage, cause.Error())
		return err
	})
	if err != nil {
		w.reportFailed(ctx, "record failure", err)
		return
	}

	fields := logger.Fields{
		logger.FieldStatus:     decision.Status,
		logger.FieldRetryCount: decision.RetryCount,
	}
	if errors.Is(cause, source.ErrNotFound) {
		fields["not_found"] = true
	}
	if decision.Terminal {
		log.WithFields(fields).Error("Task failed permanently")
	} else {
		log.WithFields(fields).Warn("Task failed, will be retried")
	}
}

// report runs fn until it succeeds or fails with something other than an
// unavailable store, doubling the delay between attempts up to ReportTimeout.
func (w *WorkerService) report(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.ReportTimeout)
	defer cancel()

	delay := w.cfg.StoreRetryDelay
	for {
		err := fn(ctx)
		if err == nil || !repository.IsUnavailable(err) {
			return err
		}
		w.storeErrors.Add(1)
		logger.FromContext(ctx).WithError(err).WithField("retry_in", delay.String()).
			Warn("Task store unavailable while reporting")
		if !sleepCtx(ctx, delay) {
			return fmt.Errorf("giving up after %s: %w", w.cfg.ReportTimeout, err)
		}
		delay *= 2
	}
}

func (w *WorkerService) reportFailed(ctx context.Context, op string, err error) {
	log := logger.FromContext(ctx).WithError(err).WithField("op", op)
	if errors.Is(err, repository.ErrStaleTransition) {
		log.Warn("Task no longer owned by this worker, dropping result")
		return
	}
	log.Error("Could not report task outcome; task stays in progress until released")
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
