package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/timmy/flatsync/internal/destination"
	"github.com/timmy/flatsync/internal/logger"
	"github.com/timmy/flatsync/internal/service"
	"github.com/timmy/flatsync/internal/source"
	"golang.org/x/sync/errgroup"
)

func newWorkerCmd() *cobra.Command {
	var (
		runOnce      bool
		pollInterval time.Duration
		concurrency  int
		staleAfter   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Claim tasks and transfer files until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup("worker")
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.cfg.ValidateSource(); err != nil {
				return err
			}
			if err := a.cfg.ValidateDestination(); err != nil {
				return err
			}

			wc := a.cfg.Worker
			if cmd.Flags().Changed("poll-interval") {
				wc.PollInterval = pollInterval
			}
			if cmd.Flags().Changed("concurrency") {
				wc.Concurrency = concurrency
			}
			if cmd.Flags().Changed("stale-after") {
				wc.StaleAfter = staleAfter
			}
			if wc.Concurrency < 1 {
				return errors.New("concurrency must be at least 1")
			}

			src, err := source.New(&a.cfg.Source)
			if err != nil {
				return err
			}
			pusher, err := destination.New(&a.cfg.Destination)
			if err != nil {
				return err
			}

			workers := make([]*service.WorkerService, 0, wc.Concurrency)
			for i := 1; i <= wc.Concurrency; i++ {
				id := wc.ID
				if wc.Concurrency > 1 {
					id = fmt.Sprintf("%s-%d", wc.ID, i)
				}
				w, err := service.NewWorkerService(a.tasks, src, pusher, a.log, service.WorkerConfig{
					ID:              id,
					TempDir:         filepath.Join(wc.TempDir, id),
					PollInterval:    wc.PollInterval,
					StoreRetryDelay: wc.StoreRetryDelay,
					ReportTimeout:   wc.ReportTimeout,
					StaleAfter:      wc.StaleAfter,
				})
				if err != nil {
					return err
				}
				workers = append(workers, w)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := pusher.CheckBucket(ctx); err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			for _, w := range workers {
				g.Go(func() error {
					if !runOnce {
						return w.Run(gctx)
					}
					processed, err := w.RunOnce(gctx)
					if err != nil {
						return fmt.Errorf("worker %s: %w", w.ID(), err)
					}
					a.log.WithFields(logger.Fields{
						logger.FieldWorkerID: w.ID(),
						"processed":          processed,
					}).Info("Worker run_once mode complete")
					return nil
				})
			}

			err = g.Wait()
			for _, w := range workers {
				s := w.Stats()
				fmt.Printf("%s: claimed=%d completed=%d fetch_failures=%d push_failures=%d store_errors=%d\n",
					w.ID(), s.Claimed, s.Completed, s.FetchFailures, s.PushFailures, s.StoreErrors)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&runOnce, "run-once", false, "process at most one task per worker and exit")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 10*time.Second, "wait between polls when the queue is empty")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "number of independent worker loops in this process")
	cmd.Flags().DurationVar(&staleAfter, "stale-after", 0, "release in-progress tasks idle for longer than this before claiming (0 disables)")
	return cmd
}
