package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rendis/stepwise/internal/logging"
	"github.com/rendis/stepwise/internal/providers"
	"github.com/rendis/stepwise/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// cli carries the state shared by all subcommands once the root command has
// loaded the configuration.
type cli struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg    *Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "stepwise",
		Short:         "Run node-graph workflows from YAML or JSON files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default: ./stepwise.yaml or ~/.stepwise/stepwise.yaml)")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&c.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(
		runCmd(c),
		validateCmd(c),
		diagramCmd(c),
		historyCmd(c),
		scheduleCmd(c),
		serveCmd(c),
		versionCmd(),
	)
	return root
}

func (c *cli) setup() error {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if c.logFormat != "" {
		cfg.Log.Format = c.logFormat
	}
	c.cfg = cfg
	// stdout belongs to command output and the MCP stdio transport.
	c.logger = logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(c.logger)
	return nil
}

func (c *cli) openApp(ctx context.Context, prompter providers.Prompter) (*app, error) {
	return newApp(ctx, c.cfg, c.logger, prompter)
}

// openStore opens the history store alone, for commands that never run a
// workflow.
func (c *cli) openStore(ctx context.Context) (*store.LibSQLStore, error) {
	if err := os.MkdirAll(c.cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	st, err := store.NewLibSQLStore(c.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
