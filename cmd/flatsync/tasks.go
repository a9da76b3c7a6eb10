package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/timmy/flatsync/internal/domain"
)

func newTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and maintain the task table",
	}
	cmd.AddCommand(newTasksStatsCmd(), newTasksListCmd(), newTasksGetCmd(), newTasksReleaseStaleCmd())
	return cmd
}

func newTasksStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the number of tasks per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup("tasks")
			if err != nil {
				return err
			}
			defer a.close()

			counts, err := a.tasks.CountByStatus(context.Background())
			if err != nil {
				return err
			}
			var total int64
			for _, status := range domain.AllTaskStatuses {
				fmt.Printf("%-18s %d\n", status+":", counts[status])
				total += counts[status]
			}
			fmt.Printf("%-18s %d\n", "total:", total)
			return nil
		},
	}
}

func newTasksListCmd() *cobra.Command {
	var (
		status string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks in a status, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, ok := domain.ParseTaskStatus(status)
			if !ok {
				return fmt.Errorf("unknown status %q", status)
			}

			a, err := setup("tasks")
			if err != nil {
				return err
			}
			defer a.close()

			tasks, err := a.tasks.ListByStatus(context.Background(), st, limit, offset)
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Printf("No tasks found with status: %s\n", st)
				return nil
			}
			for _, t := range tasks {
				msg := ""
				if t.ErrorMessage != nil {
					msg = *t.ErrorMessage
				}
				fmt.Printf("%-6d %-60s retries=%d worker=%s updated=%s %s\n",
					t.ID, t.FileKey, t.RetryCount, t.Owner(), t.UpdatedAt.Format(time.RFC3339), msg)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", string(domain.TaskStatusPending), "task status to list")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of tasks")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of tasks to skip")
	return cmd
}

func newTasksGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get FILE_KEY|ID",
		Short: "Print one task as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup("tasks")
			if err != nil {
				return err
			}
			defer a.close()

			ctx := context.Background()
			var task *domain.Task
			if id, perr := strconv.ParseUint(args[0], 10, 64); perr == nil {
				task, err = a.tasks.GetByID(ctx, uint(id))
			} else {
				task, err = a.tasks.GetByFileKey(ctx, args[0])
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(task)
		},
	}
}

func newTasksReleaseStaleCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "release-stale",
		Short: "Fail in-progress tasks whose worker stopped reporting",
		Long: `Tasks stay claimed or fetched forever when their worker dies mid-transfer.
release-stale records a failure for every in-progress task not updated within
--older-than (default worker.stale_after), so the retry policy applies.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup("tasks")
			if err != nil {
				return err
			}
			defer a.close()

			if !cmd.Flags().Changed("older-than") {
				olderThan = a.cfg.Worker.StaleAfter
			}
			if olderThan <= 0 {
				return errors.New("--older-than (or worker.stale_after) must be positive")
			}

			n, err := a.tasks.ReleaseStale(context.Background(), olderThan)
			if err != nil {
				return err
			}
			fmt.Printf("Released %d stale task(s)\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "minimum time since the task was last updated")
	return cmd
}
