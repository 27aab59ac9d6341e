package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/stepwise/internal/scheduler"
	"github.com/rendis/stepwise/internal/store"
)

func scheduleCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage cron-triggered runs executed by `stepwise serve`",
	}
	cmd.AddCommand(
		scheduleAddCmd(c),
		scheduleListCmd(c),
		scheduleRemoveCmd(c),
		scheduleToggleCmd(c, "enable", true),
		scheduleToggleCmd(c, "disable", false),
	)
	return cmd
}

// withScheduler opens the store and hands fn a scheduler that is never
// started; it only edits jobs.
func (c *cli) withScheduler(cmd *cobra.Command, fn func(s *scheduler.Scheduler, st store.Store) error) error {
	st, err := c.openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(scheduler.New(st, nil, scheduler.Config{}, c.logger), st)
}

func scheduleAddCmd(c *cli) *cobra.Command {
	var (
		name     string
		cronExpr string
		vars     []string
	)
	cmd := &cobra.Command{
		Use:   "add <workflow>",
		Short: "Schedule a workflow file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := parseVars(vars)
			if err != nil {
				return err
			}
			path := args[0]
			if _, err := os.Stat(path); err == nil {
				if abs, err := filepath.Abs(path); err == nil {
					path = abs
				}
			}
			return c.withScheduler(cmd, func(s *scheduler.Scheduler, _ store.Store) error {
				job, err := s.AddJob(cmd.Context(), name, path, cronExpr, seed)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scheduled %s (%s), next run %s\n",
					job.ID, job.Name, formatTime(job.NextRunAt))
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&name, "name", "", "job name (default: the workflow path)")
	flags.StringVar(&cronExpr, "cron", "", "five-field cron expression or descriptor such as @hourly")
	flags.StringArrayVar(&vars, "var", nil, "seed variable as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("cron")
	return cmd
}

func scheduleListCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withScheduler(cmd, func(_ *scheduler.Scheduler, st store.Store) error {
				jobs, err := st.ListScheduledJobs(cmd.Context(), store.ScheduledJobFilter{})
				if err != nil {
					return err
				}
				if asJSON {
					if jobs == nil {
						jobs = []*store.ScheduledJob{}
					}
					return writeJSON(cmd.OutOrStdout(), jobs)
				}
				printJobs(cmd.OutOrStdout(), jobs)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func scheduleRemoveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job-id>",
		Short: "Delete a scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withScheduler(cmd, func(s *scheduler.Scheduler, _ store.Store) error {
				if err := s.RemoveJob(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
				return nil
			})
		},
	}
}

func scheduleToggleCmd(c *cli, verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <job-id>",
		Short: verb + " a scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withScheduler(cmd, func(s *scheduler.Scheduler, _ store.Store) error {
				if err := s.SetEnabled(cmd.Context(), args[0], enabled); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%sd %s\n", verb, args[0])
				return nil
			})
		},
	}
}

func printJobs(w io.Writer, jobs []*store.ScheduledJob) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCRON\tENABLED\tNEXT RUN\tLAST STATUS")
	for _, j := range jobs {
		last := j.LastRunStatus
		if last == "" {
			last = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n",
			j.ID, j.Name, j.CronExpression, j.Enabled, formatTime(j.NextRunAt), last)
	}
	_ = tw.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
