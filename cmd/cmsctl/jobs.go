package main

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-cms/odyssey-cms/cmd/cmsctl/cli"
)

var (
	pruneDays     int
	scheduledSize int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and trigger background jobs",
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print default queue statistics",
	RunE: withJobs(func(cmd *cobra.Command, c *cli.JobsCLI) error {
		stats, err := c.InspectQueue()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queue=%s size=%d pending=%d active=%d scheduled=%d retry=%d archived=%d completed=%d\n",
			stats.Queue, stats.Size, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived, stats.Completed)
		return nil
	}),
}

var jobsHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Print the queue health document served at /jobs/health",
	RunE: withJobs(func(cmd *cobra.Command, c *cli.JobsCLI) error {
		health, err := c.Health()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(health)
	}),
}

var jobsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Enqueue an events log prune run",
	RunE: withJobs(func(cmd *cobra.Command, c *cli.JobsCLI) error {
		days := pruneDays
		if days == 0 {
			days = cfg.EventsRetentionDays
		}
		info, err := c.Prune(cmd.Context(), days)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s\n", info.Type, info.ID)
		return nil
	}),
}

var jobsScheduledCmd = &cobra.Command{
	Use:   "scheduled",
	Short: "List scheduled tasks on the default queue",
	RunE: withJobs(func(cmd *cobra.Command, c *cli.JobsCLI) error {
		tasks, err := c.ListScheduled(scheduledSize)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s next=%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02T15:04:05Z07:00"))
		}
		return nil
	}),
}

func init() {
	jobsPruneCmd.Flags().IntVar(&pruneDays, "days", 0, "retention in days (default EVENTS_RETENTION_DAYS)")
	jobsScheduledCmd.Flags().IntVar(&scheduledSize, "size", 10, "number of tasks to list")

	jobsCmd.AddCommand(jobsStatsCmd, jobsHealthCmd, jobsPruneCmd, jobsScheduledCmd)
}

func withJobs(run func(cmd *cobra.Command, c *cli.JobsCLI) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c := cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer c.Close()
		return run(cmd, c)
	}
}
