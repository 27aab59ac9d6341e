package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rendis/stepwise/internal/logging"
	"github.com/rendis/stepwise/internal/providers"
	"github.com/rendis/stepwise/internal/streaming"
	"github.com/rendis/stepwise/pkg/schema"
)

func runCmd(c *cli) *cobra.Command {
	var (
		vars           []string
		follow         bool
		nonInteractive bool
		allowWrites    bool
		asJSON         bool
	)
	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Run a workflow file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := parseVars(vars)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var prompter providers.Prompter = providers.NonInteractive{AllowWrites: allowWrites}
			var terminal *providers.ChannelPrompter
			if !nonInteractive {
				terminal = providers.NewChannelPrompter()
				prompter = terminal
			}

			a, err := c.openApp(ctx, prompter)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := a.loadWorkflow(args[0])
			if err != nil {
				return err
			}

			runID := uuid.NewString()
			ctx = logging.WithRunID(ctx, runID)

			bgCtx, stopBg := context.WithCancel(ctx)
			defer stopBg()
			if terminal != nil {
				go newTerminalPrompter(os.Stdin, cmd.ErrOrStderr()).serve(bgCtx, terminal)
			}
			if follow {
				events, unsubscribe, err := a.hub.Subscribe(bgCtx, streaming.EventFilter{RunID: runID})
				if err != nil {
					return err
				}
				done := make(chan struct{})
				go func() {
					defer close(done)
					printEvents(cmd.ErrOrStderr(), events)
				}()
				defer func() {
					unsubscribe()
					<-done
				}()
			}

			res, runErr := a.run(ctx, doc, seed)
			if res == nil {
				return runErr
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, res); err != nil {
					return err
				}
			} else {
				printRunSummary(out, res.Record)
			}
			return runErr
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVar(&vars, "var", nil, "seed variable as key=value (repeatable); JSON values are decoded")
	flags.BoolVarP(&follow, "follow", "f", false, "print run events as they happen")
	flags.BoolVar(&nonInteractive, "non-interactive", false, "answer prompts with their defaults instead of asking")
	flags.BoolVar(&allowWrites, "allow-writes", false, "accept write confirmations when non-interactive")
	flags.BoolVar(&asJSON, "json", false, "print the record and final variables as JSON")
	return cmd
}

// parseVars turns key=value pairs into a seed scope. Values that parse as
// JSON numbers, booleans, arrays or objects keep that type.
func parseVars(pairs []string) (map[string]any, error) {
	seed := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid --var %q: want key=value", pair)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			if _, isString := decoded.(string); !isString && decoded != nil {
				seed[key] = decoded
				continue
			}
		}
		seed[key] = value
	}
	return seed, nil
}

func printRunSummary(w io.Writer, rec *schema.ExecutionRecord) {
	fmt.Fprintf(w, "run %s  workflow=%s  status=%s  steps=%d\n", rec.ID, rec.WorkflowName, rec.Status, len(rec.Steps))
	if rec.Error != "" {
		fmt.Fprintf(w, "error: %s\n", rec.Error)
	}
}

func printEvents(w io.Writer, events <-chan streaming.StreamEvent) {
	for ev := range events {
		line := fmt.Sprintf("%s  %-24s", ev.Timestamp.Format(time.TimeOnly), ev.EventType)
		if ev.NodeID != "" {
			line += "  node=" + ev.NodeID
		}
		if ev.Workflow != "" {
			line += "  workflow=" + ev.Workflow
		}
		fmt.Fprintln(w, line)
	}
}
