package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/stepwise/internal/diagram"
	"github.com/rendis/stepwise/internal/loader"
	"github.com/rendis/stepwise/internal/store"
	"github.com/rendis/stepwise/pkg/schema"
)

func diagramCmd(c *cli) *cobra.Command {
	var (
		format string
		runID  string
		last   bool
		output string
	)
	cmd := &cobra.Command{
		Use:   "diagram <workflow>",
		Short: "Render a workflow graph, optionally with a run's step statuses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			doc, err := loader.LoadFile(args[0])
			if err != nil {
				return err
			}

			var rec *schema.ExecutionRecord
			if runID != "" || last {
				st, err := c.openStore(ctx)
				if err != nil {
					return err
				}
				defer st.Close()
				if last {
					recent, err := st.ListRecords(ctx, store.RecordFilter{WorkflowName: doc.Workflow.Name, Limit: 1})
					if err != nil {
						return err
					}
					if len(recent) == 0 {
						return schema.NewErrorf(schema.ErrCodeNotFound, "no runs of workflow %q", doc.Workflow.Name)
					}
					runID = recent[0].ID
				}
				if rec, err = st.GetRecord(ctx, runID); err != nil {
					return err
				}
			}

			model, err := diagram.Build(doc.Workflow, rec)
			if err != nil {
				return err
			}

			var data []byte
			switch format {
			case "mermaid":
				data = []byte(diagram.RenderMermaid(model))
			case "ascii":
				data = []byte(diagram.RenderASCII(model))
			case "png", "image":
				if output == "" {
					return schema.NewError(schema.ErrCodeValidation, "png output needs -o <file>")
				}
				if data, err = diagram.RenderImage(ctx, model); err != nil {
					return err
				}
			case "svg":
				if data, err = diagram.RenderSVG(ctx, model); err != nil {
					return err
				}
			default:
				return schema.NewErrorf(schema.ErrCodeValidation, "unknown format %q: want mermaid, ascii, png or svg", format)
			}

			if output == "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&format, "format", "mermaid", "mermaid, ascii, png or svg")
	flags.StringVar(&runID, "run", "", "overlay the step statuses of this run")
	flags.BoolVar(&last, "last", false, "overlay the most recent run of the workflow")
	flags.StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	cmd.MarkFlagsMutuallyExclusive("run", "last")
	return cmd
}
