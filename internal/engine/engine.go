// Package engine walks a workflow graph node by node, maintaining the
// variable scope and the execution record of the run.
package engine

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rendis/stepwise/internal/expressions"
	"github.com/rendis/stepwise/internal/logging"
	"github.com/rendis/stepwise/internal/nodes"
	"github.com/rendis/stepwise/internal/streaming"
	"github.com/rendis/stepwise/pkg/schema"
)

// DefaultMaxDepth bounds nested workflow calls.
const DefaultMaxDepth = 32

// Sink receives the finished record of every run. The engine never persists
// records itself.
type Sink interface {
	SaveRecord(ctx context.Context, rec *schema.ExecutionRecord) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec *schema.ExecutionRecord) error

func (f SinkFunc) SaveRecord(ctx context.Context, rec *schema.ExecutionRecord) error {
	return f(ctx, rec)
}

// Config holds engine settings.
type Config struct {
	MaxDepth int // nested workflow limit; 0 means DefaultMaxDepth
}

// Result is the outcome of a run: the record and the final top-level scope.
type Result struct {
	Record    *schema.ExecutionRecord `json:"record"`
	Variables map[string]any          `json:"variables"`
}

// Engine runs workflows. It is safe for concurrent use; each Run owns its
// scope and recorder.
type Engine struct {
	dispatcher *nodes.Dispatcher
	hub        streaming.EventHub
	sink       Sink
	cfg        Config
	logger     *slog.Logger
}

// New creates an Engine. hub and sink may be nil.
func New(dispatcher *nodes.Dispatcher, hub streaming.EventHub, sink Sink, cfg Config, logger *slog.Logger) *Engine {
	if hub == nil {
		hub = streaming.Discard
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{dispatcher: dispatcher, hub: hub, sink: sink, cfg: cfg, logger: logger}
}

// Hub returns the event hub runs publish on.
func (e *Engine) Hub() streaming.EventHub { return e.hub }

// Run executes wf from its first node with a scope seeded from seed.
//
// Load-time errors (empty workflow, duplicate ids, dangling references) are
// returned before any step runs, with a nil Result. Otherwise the Result is
// always returned; the error is non-nil when the run ended in error or was
// cancelled. The run id is taken from ctx (logging.WithRunID) when present.
func (e *Engine) Run(ctx context.Context, wf *schema.Workflow, seed map[string]any) (*Result, error) {
	g, err := BuildGraph(wf)
	if err != nil {
		return nil, err
	}

	runID := logging.RunIDFrom(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = logging.WithRunID(ctx, runID)
	}
	ctx = logging.WithWorkflow(ctx, wf.Name)

	rec := NewRecorder(runID, wf.Name, e.hub)
	rec.Start(ctx)
	e.logger.InfoContext(ctx, "run started", slog.Int("nodes", g.Len()))

	scope := expressions.NewScope(seed)
	w := &walker{eng: e, rec: rec, runID: runID}
	runErr := w.walk(ctx, g, scope)

	status := runStatusFor(runErr)
	var errMsg string
	if runErr != nil {
		errMsg = errorMessage(runErr)
	}
	// Terminal events and the sink must not be cut short by the run's own cancellation.
	finishCtx := context.WithoutCancel(ctx)
	if err := rec.Finish(finishCtx, status, errMsg); err != nil {
		return nil, err
	}

	record := rec.Snapshot()
	e.logger.InfoContext(ctx, "run finished",
		slog.String("status", string(status)),
		slog.Int("steps", len(record.Steps)),
	)

	if e.sink != nil {
		if err := e.sink.SaveRecord(finishCtx, record); err != nil {
			e.logger.ErrorContext(ctx, "saving execution record failed", slog.String("error", err.Error()))
		}
	}

	return &Result{Record: record, Variables: scope.Snapshot()}, runErr
}
