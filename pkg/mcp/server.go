// Package mcp exposes stepwise over the Model Context Protocol so agents
// can run, validate, inspect and diagram workflows.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/stepwise/internal/loader"
	"github.com/rendis/stepwise/internal/store"
	"github.com/rendis/stepwise/internal/streaming"
	"github.com/rendis/stepwise/internal/validation"
	"github.com/rendis/stepwise/pkg/schema"
)

// Runner runs a workflow file. The run id is taken from ctx when set with
// logging.WithRunID.
type Runner interface {
	RunFile(ctx context.Context, path string, vars map[string]any) (*schema.ExecutionRecord, error)
}

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	Runner    Runner
	Store     store.Store
	Workflows *loader.FileResolver
	Validator *validation.WorkflowValidator
	Hub       streaming.EventHub
	Logger    *slog.Logger
	Version   string
}

// Server wraps an MCP server with the stepwise tool handlers.
type Server struct {
	runner    Runner
	store     store.Store
	workflows *loader.FileResolver
	validator *validation.WorkflowValidator
	notifier  *RunNotifier
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a Server with all tools registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	workflows := deps.Workflows
	if workflows == nil {
		workflows = loader.NewFileResolver(".")
	}

	s := &Server{
		runner:    deps.Runner,
		store:     deps.Store,
		workflows: workflows,
		validator: deps.Validator,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"stepwise",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Stepwise runs node-graph workflows stored as YAML or JSON files. Use stepwise.validate before stepwise.run, stepwise.history to inspect past runs, and stepwise.diagram to see the graph with the last run's statuses."),
	)
	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	if deps.Hub != nil {
		s.notifier = NewRunNotifier(mcpSrv, deps.Hub, logger)
	}
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: historyTool(), Handler: s.handleHistory},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}
