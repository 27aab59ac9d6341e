package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/rendis/stepwise/internal/providers"
	"github.com/rendis/stepwise/internal/scheduler"
	stepwisemcp "github.com/rendis/stepwise/pkg/mcp"
	"github.com/rendis/stepwise/pkg/schema"
)

const schedulerLockFile = "scheduler.lock"

func serveCmd(c *cli) *cobra.Command {
	var (
		noMCP       bool
		noScheduler bool
		allowWrites bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tools on stdio and run scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			withScheduler := c.cfg.Scheduler.Enabled && !noScheduler
			if noMCP && !withScheduler {
				return schema.NewError(schema.ErrCodeValidation, "nothing to serve: MCP and scheduler are both disabled")
			}

			if withScheduler {
				unlock, err := lockDataDir(c.cfg.DataDir)
				if err != nil {
					return err
				}
				defer unlock()
			}

			a, err := c.openApp(ctx, providers.NonInteractive{AllowWrites: allowWrites})
			if err != nil {
				return err
			}
			defer a.Close()

			if withScheduler {
				sched := scheduler.New(a.store, a, scheduler.Config{
					Tick:        c.cfg.Scheduler.Tick,
					Concurrency: c.cfg.Scheduler.Concurrency,
				}, c.logger)
				if err := sched.Start(ctx); err != nil {
					return err
				}
				defer sched.Stop()
			}

			if noMCP {
				c.logger.Info("serving scheduled jobs only", slog.String("data_dir", c.cfg.DataDir))
				<-ctx.Done()
				return nil
			}

			srv := stepwisemcp.NewServer(stepwisemcp.ServerDeps{
				Runner:    a,
				Store:     a.store,
				Workflows: a.workflows,
				Validator: a.validator,
				Hub:       a.hub,
				Logger:    c.logger,
				Version:   version,
			})
			c.logger.Info("mcp server listening on stdio", slog.String("version", version))
			if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&noMCP, "no-mcp", false, "do not serve MCP on stdio; only run scheduled jobs")
	flags.BoolVar(&noScheduler, "no-scheduler", false, "do not run scheduled jobs")
	flags.BoolVar(&allowWrites, "allow-writes", false, "accept write confirmations without a user")
	return cmd
}

// lockDataDir ensures a single scheduler per data directory.
func lockDataDir(dir string) (unlock func(), err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	lock := flock.New(filepath.Join(dir, schedulerLockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "acquiring scheduler lock").WithCause(err)
	}
	if !locked {
		return nil, schema.NewErrorf(schema.ErrCodeConflict, "another stepwise scheduler holds %s", lock.Path())
	}
	return func() { _ = lock.Unlock() }, nil
}
