package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/timmy/flatsync/internal/service"
	"github.com/timmy/flatsync/internal/source"
)

func newDiscoverCmd() *cobra.Command {
	var req service.CandidateRequest

	cmd := &cobra.Command{
		Use:   "discover historical|daily|on-demand|keys",
		Short: "Register candidate files as pending tasks",
		Example: `  flatsync discover historical --start-date 2024-01-01 --end-date 2024-03-31
  flatsync discover daily
  flatsync discover on-demand --dates 2024-01-02,2024-01-03
  flatsync discover keys --keys us_stocks_sip/day_aggs_v1/2024/2024-01-02.csv.gz`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := service.ParseDiscoverMode(args[0])
			if err != nil {
				return err
			}
			req.Mode = mode

			a, err := setup("discoverer")
			if err != nil {
				return err
			}
			defer a.close()

			// Only historical mode talks to the source
			var lister source.Lister
			if mode == service.ModeHistorical {
				if err := a.cfg.ValidateSource(); err != nil {
					return err
				}
				src, err := source.New(&a.cfg.Source)
				if err != nil {
					return err
				}
				lister = src
			}

			resolver, err := service.NewCandidateResolver(lister, a.cfg.Source.Prefix, a.cfg.Discoverer.Timezone)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = a.log.WithContext(ctx)

			stats, err := service.NewDiscovererService(a.tasks, resolver, a.log).
				WithRunRecorder(a.runs).
				Discover(ctx, &req)
			if stats != nil {
				fmt.Printf("Run %s\n", stats.RunID)
				fmt.Printf("Discovered: %d  Added: %d  Already present: %d  Invalid: %d\n",
					stats.Candidates, stats.Inserted, stats.AlreadyPresent, stats.Invalid)
			}
			if err != nil {
				a.log.WithError(err).Error("Discovery failed")
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&req.StartDate, "start-date", "", "first date for historical mode (YYYY-MM-DD)")
	cmd.Flags().StringVar(&req.EndDate, "end-date", "", "last date for historical mode (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&req.Dates, "dates", nil, "comma separated dates for on-demand mode")
	cmd.Flags().StringSliceVar(&req.Keys, "keys", nil, "comma separated file keys for keys mode")
	return cmd
}
