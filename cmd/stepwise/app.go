package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rendis/stepwise/internal/engine"
	"github.com/rendis/stepwise/internal/loader"
	"github.com/rendis/stepwise/internal/nodes"
	"github.com/rendis/stepwise/internal/providers"
	"github.com/rendis/stepwise/internal/store"
	"github.com/rendis/stepwise/internal/streaming"
	"github.com/rendis/stepwise/internal/validation"
	"github.com/rendis/stepwise/pkg/schema"
)

// app wires the store, providers and engine shared by every command.
type app struct {
	cfg       *Config
	logger    *slog.Logger
	store     *store.LibSQLStore
	events    *store.EventLog
	hub       *streaming.MemoryHub
	workflows *loader.FileResolver
	validator *validation.WorkflowValidator
	engine    *engine.Engine
	mcp       *providers.MCPClients

	stopEvents context.CancelFunc
	eventsDone <-chan struct{}
}

// newApp opens the history store and builds the engine. prompter answers
// interactive nodes; nil means NonInteractive.
func newApp(ctx context.Context, cfg *Config, logger *slog.Logger, prompter providers.Prompter) (*app, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "creating data directory").WithCause(err)
	}
	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	files, err := providers.NewLocalFS(cfg.FS.Root)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	hub := streaming.NewMemoryHub()
	events := store.NewEventLog(st)
	eventsCtx, stopEvents := context.WithCancel(context.WithoutCancel(ctx))
	eventsDone, err := events.Follow(eventsCtx, hub, streaming.EventFilter{}, logger)
	if err != nil {
		stopEvents()
		_ = st.Close()
		return nil, err
	}

	if prompter == nil {
		prompter = providers.NonInteractive{}
	}
	workflows := loader.NewFileResolver(cfg.WorkflowsDir)
	mcpClients := providers.NewMCPClients(cfg.MCP.Servers, version, logger)

	bundle := &providers.Bundle{
		LLM: providers.NewOpenAIClient(providers.OpenAIConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		}),
		HTTP: providers.NewHTTPClient(providers.HTTPConfig{
			MaxResponseBody: cfg.HTTP.MaxResponseBytes,
			DefaultTimeout:  cfg.HTTP.Timeout,
			MaxRedirects:    cfg.HTTP.MaxRedirects,
			UserAgent:       "stepwise/" + version,
		}),
		Files:     files,
		Prompter:  engine.ObservePrompts(prompter, hub),
		Workflows: workflows,
		Host:      providers.NewCommandRegistry(nil),
		RAG:       providers.NewKeywordIndex(files),
		MCP:       mcpClients,
	}

	reg := nodes.NewDefaultRegistry()
	validator, err := validation.NewWorkflowValidator(reg)
	if err != nil {
		stopEvents()
		_ = st.Close()
		return nil, err
	}
	dispatcher := nodes.NewDispatcher(reg, bundle, logger)
	eng := engine.New(dispatcher, hub, st, engine.Config{MaxDepth: cfg.Engine.MaxDepth}, logger)

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		events:     events,
		hub:        hub,
		workflows:  workflows,
		validator:  validator,
		engine:     eng,
		mcp:        mcpClients,
		stopEvents: stopEvents,
		eventsDone: eventsDone,
	}, nil
}

// loadWorkflow reads ref as a path first and falls back to the workflows
// directory.
func (a *app) loadWorkflow(ref string) (*loader.Document, error) {
	doc, err := loader.LoadFile(ref)
	if err == nil || schema.CodeOf(err) != schema.ErrCodeNotFound {
		return doc, err
	}
	path, perr := a.workflows.Path(ref)
	if perr != nil {
		return nil, err
	}
	return loader.LoadFile(path)
}

// run validates doc and executes it. A nil Result means nothing ran.
func (a *app) run(ctx context.Context, doc *loader.Document, vars map[string]any) (*engine.Result, error) {
	result := a.validator.ValidateDocument(doc.Raw, doc.Workflow)
	for _, w := range result.Warnings {
		a.logger.WarnContext(ctx, "workflow warning",
			slog.String("path", w.Path),
			slog.String("message", w.Message),
		)
	}
	if err := result.ToError(); err != nil {
		return nil, err
	}
	return a.engine.Run(ctx, doc.Workflow, vars)
}

// RunFile loads, validates and runs a workflow file. The record is
// returned whenever the run started, even if it failed.
func (a *app) RunFile(ctx context.Context, path string, vars map[string]any) (*schema.ExecutionRecord, error) {
	doc, err := a.loadWorkflow(path)
	if err != nil {
		return nil, err
	}
	res, err := a.run(ctx, doc, vars)
	if res == nil {
		return nil, err
	}
	return res.Record, err
}

// Close flushes pending run events and releases the store and MCP sessions.
func (a *app) Close() error {
	a.stopEvents()
	<-a.eventsDone
	if st := a.hub.Stats(); st.Dropped > 0 {
		a.logger.Warn("run events dropped by slow subscribers", "dropped", st.Dropped)
	}
	a.hub.Close()
	return errors.Join(a.mcp.Close(), a.store.Close())
}
