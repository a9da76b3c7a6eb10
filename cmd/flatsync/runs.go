package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent discovery runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup("runs")
			if err != nil {
				return err
			}
			defer a.close()

			runs, err := a.runs.ListRecent(context.Background(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No discovery runs recorded")
				return nil
			}
			for _, r := range runs {
				fmt.Printf("%s  %-10s %-9s started=%s candidates=%d added=%d present=%d invalid=%d\n",
					r.ID, r.Mode, r.Status, r.StartedAt.Format(time.RFC3339),
					r.Candidates, r.Inserted, r.AlreadyPresent, r.Invalid)
				if r.ErrorLog != "" {
					fmt.Printf("    error: %s\n", r.ErrorLog)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	return cmd
}
