package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/stepwise/internal/store"
	"github.com/rendis/stepwise/pkg/schema"
)

func historyCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and prune past runs",
	}
	cmd.AddCommand(historyListCmd(c), historyShowCmd(c), historyDeleteCmd(c))
	return cmd
}

func historyListCmd(c *cli) *cobra.Command {
	var (
		workflow string
		status   string
		limit    int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			filter := store.RecordFilter{WorkflowName: workflow, Limit: limit}
			if status != "" {
				s := schema.RunStatus(status)
				filter.Status = &s
			}
			runs, err := st.ListRecords(ctx, filter)
			if err != nil {
				return err
			}
			if asJSON {
				if runs == nil {
					runs = []*store.RecordSummary{}
				}
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&workflow, "workflow", "", "only runs of this workflow")
	flags.StringVar(&status, "status", "", "only runs with this status: running, completed, error, cancelled")
	flags.IntVar(&limit, "limit", 20, "maximum number of runs")
	flags.BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func historyShowCmd(c *cli) *cobra.Command {
	var events bool
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the full execution record of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			rec, err := st.GetRecord(ctx, args[0])
			if err != nil {
				return err
			}
			if !events {
				return writeJSON(cmd.OutOrStdout(), rec)
			}
			evs, err := store.NewEventLog(st).Events(ctx, rec.ID, 0)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"record": rec, "events": evs})
		},
	}
	cmd.Flags().BoolVar(&events, "events", false, "include the persisted event stream")
	return cmd
}

func historyDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>...",
		Short: "Delete runs and their events",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			for _, id := range args {
				if err := st.DeleteRecord(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			}
			return nil
		},
	}
}

func printRuns(w io.Writer, runs []*store.RecordSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWORKFLOW\tSTATUS\tSTEPS\tSTARTED\tDURATION")
	for _, r := range runs {
		duration := "-"
		if r.EndTime != nil {
			duration = r.EndTime.Sub(r.StartTime).Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.WorkflowName, r.Status, r.StepCount,
			r.StartTime.Local().Format(time.DateTime), duration)
	}
	_ = tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
