package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rendis/stepwise/internal/logging"
	"github.com/rendis/stepwise/internal/nodes"
	"github.com/rendis/stepwise/internal/providers"
	"github.com/rendis/stepwise/internal/streaming"
	"github.com/rendis/stepwise/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- test doubles ---

type captureSink struct {
	mu      sync.Mutex
	records []*schema.ExecutionRecord
}

func (s *captureSink) SaveRecord(_ context.Context, rec *schema.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

type mapResolver map[string]*schema.Workflow

func (m mapResolver) Resolve(_ context.Context, ref string) (*schema.Workflow, error) {
	wf, ok := m[ref]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", ref)
	}
	return wf, nil
}

// funcHandler is a node kind whose behavior is supplied by the test.
type funcHandler struct {
	kind schema.NodeType
	fn   func(ctx context.Context, call *nodes.Call) (*nodes.Outcome, error)
}

func (h funcHandler) Kind() schema.NodeType { return h.kind }
func (funcHandler) Validate(*schema.Node) error { return nil }
func (h funcHandler) Execute(ctx context.Context, call *nodes.Call) (*nodes.Outcome, error) {
	return h.fn(ctx, call)
}

// promptFunc adapts a function to providers.Prompter.
type promptFunc func(ctx context.Context, req schema.PromptRequest) (schema.PromptResponse, error)

func (f promptFunc) Prompt(ctx context.Context, req schema.PromptRequest) (schema.PromptResponse, error) {
	return f(ctx, req)
}

// --- helpers ---

type testEngine struct {
	*Engine
	sink *captureSink
	hub  *streaming.MemoryHub
}

func newTestEngine(t *testing.T, bundle *providers.Bundle, extra ...nodes.Handler) *testEngine {
	t.Helper()
	reg := nodes.NewDefaultRegistry()
	for _, h := range extra {
		require.NoError(t, reg.Register(h))
	}
	sink := &captureSink{}
	hub := streaming.NewMemoryHub()
	eng := New(nodes.NewDispatcher(reg, bundle, nil), hub, sink, Config{}, nil)
	return &testEngine{Engine: eng, sink: sink, hub: hub}
}

func variable(id, name, value string) schema.Node {
	return schema.Node{ID: id, Type: schema.NodeVariable, Properties: map[string]string{"name": name, "value": value}}
}

func stepIDs(rec *schema.ExecutionRecord) []string {
	ids := make([]string, len(rec.Steps))
	for i, s := range rec.Steps {
		ids[i] = s.NodeID
	}
	return ids
}

func countWorkflow() *schema.Workflow {
	return &schema.Workflow{Name: "count", Nodes: []schema.Node{
		{ID: "init", Type: schema.NodeVariable, Properties: map[string]string{"name": "n", "value": "0"}, Next: "loop"},
		{ID: "loop", Type: schema.NodeWhile, Properties: map[string]string{"condition": "{{n}} < 2"}, TrueNext: "inc", FalseNext: "done"},
		{ID: "inc", Type: schema.NodeSet, Properties: map[string]string{"name": "n", "value": "{{n}}+1"}, Next: "loop"},
		{ID: "done", Type: schema.NodeVariable, Properties: map[string]string{"name": "result", "value": "finished"}},
	}}
}

// --- tests ---

func TestRun_CountExample(t *testing.T) {
	eng := newTestEngine(t, nil)

	res, err := eng.Run(context.Background(), countWorkflow(), nil)
	require.NoError(t, err)

	rec := res.Record
	assert.Equal(t, schema.RunStatusCompleted, rec.Status)
	assert.Equal(t, "count", rec.WorkflowName)
	assert.NotEmpty(t, rec.ID)
	require.NotNil(t, rec.EndTime)
	assert.Equal(t, []string{"init", "loop", "inc", "loop", "inc", "loop", "done"}, stepIDs(rec))

	var guards []any
	for _, s := range rec.Steps {
		assert.Equal(t, schema.StepStatusSuccess, s.Status)
		if s.NodeID == "loop" {
			guards = append(guards, s.Output)
		}
	}
	assert.Equal(t, []any{true, true, false}, guards)

	assert.Equal(t, float64(2), res.Variables["n"])
	assert.Equal(t, "finished", res.Variables["result"])

	require.Len(t, eng.sink.records, 1)
	assert.Equal(t, rec.ID, eng.sink.records[0].ID)
}

func TestRun_LinearWorkflowVisitsArrayOrder(t *testing.T) {
	eng := newTestEngine(t, nil)
	wf := &schema.Workflow{Name: "linear", Nodes: []schema.Node{
		variable("a", "x", "1"),
		variable("b", "y", "2"),
		{ID: "c", Type: schema.NodeSet, Properties: map[string]string{"name": "z", "value": "{{x}}+{{y}}"}},
		variable("d", "w", "done"),
	}}

	res, err := eng.Run(context.Background(), wf, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, stepIDs(res.Record))
	for _, s := range res.Record.Steps {
		assert.Equal(t, schema.StepStatusSuccess, s.Status)
		assert.Equal(t, "linear", s.Workflow)
	}
	assert.Equal(t, float64(3), res.Variables["z"])
}

func TestRun_WhileTerminatesAfterThreeBodies(t *testing.T) {
	eng := newTestEngine(t, nil)
	wf := &schema.Workflow{Name: "loop", Nodes: []schema.Node{
		{ID: "guard", Type: schema.NodeWhile, Properties: map[string]string{"condition": "{{n}} < 3"}, TrueNext: "body"},
		{ID: "body", Type: schema.NodeSet, Properties: map[string]string{"name": "n", "value": "{{n}}+1"}, Next: "guard"},
	}}

	res, err := eng.Run(context.Background(), wf, map[string]any{"n": 0})
	require.NoError(t, err)

	var bodies, trues, falses int
	for _, s := range res.Record.Steps {
		switch {
		case s.NodeID == "body":
			bodies++
		case s.Output == true:
			trues++
		default:
			falses++
		}
	}
	assert.Equal(t, 3, bodies)
	assert.Equal(t, 3, trues)
	assert.Equal(t, 1, falses)
	assert.Equal(t, float64(3), res.Variables["n"])
}

func TestRun_UnparseableIfConditionIsFalse(t *testing.T) {
	eng := newTestEngine(t, nil)
	wf := &schema.Workflow{Name: "if", Nodes: []schema.Node{
		{ID: "check", Type: schema.NodeIf, Properties: map[string]string{"condition": "banana"}, TrueNext: "yes", FalseNext: "no"},
		variable("yes", "path", "yes"),
		variable("no", "path", "no"),
	}}

	res, err := eng.Run(context.Background(), wf, nil)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, res.Record.Status)
	assert.Equal(t, []string{"check", "no"}, stepIDs(res.Record))
	assert.NotEmpty(t, res.Record.Steps[0].Error)
	assert.Equal(t, "no", res.Variables["path"])
}

func TestRun_MalformedWhileGuardNeverEntered(t *testing.T) {
	eng := newTestEngine(t, nil)
	wf := &schema.Workflow{Name: "while", Nodes: []schema.Node{
		{ID: "guard", Type: schema.NodeWhile, Properties: map[string]string{"condition": "banana"}, TrueNext: "body", FalseNext: "after"},
		{ID: "body", Type: schema.NodeSet, Properties: map[string]string{"name": "n", "value": "1"}, Next: "guard"},
		variable("after", "result", "skipped loop"),
	}}

	res, err := eng.Run(context.Background(), wf, nil)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, res.Record.Status)
	assert.Equal(t, []string{"guard", "after"}, stepIDs(res.Record))

	guard := res.Record.Steps[0]
	assert.Equal(t, schema.StepStatusSuccess, guard.Status)
	assert.NotEmpty(t, guard.Error)
	assert.NotContains(t, res.Variables, "n")
	assert.Equal(t, "skipped loop", res.Variables["result"])
}

func TestRun_FalseBranchWithoutTargetEnds(t *testing.T) {
	eng := newTestEngine(t, nil)
	wf := &schema.Workflow{Name: "if", Nodes: []schema.Node{
		{ID: "check", Type: schema.NodeIf, Properties: map[string]string{"condition": "1 > 2"}},
		variable("after", "x", "1"),
	}}

	res, err := eng.Run(context.Background(), wf, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"check"}, stepIDs(res.Record))
}

func TestRun_CancelBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	canceller := funcHandler{kind: "test-cancel", fn: func(context.Context, *nodes.Call) (*nodes.Outcome, error) {
		cancel()
		return &nodes.Outcome{Status: schema.StepStatusSuccess}, nil
	}}
	eng := newTestEngine(t, nil, canceller)
	wf := &schema.Workflow{Name: "cancel", Nodes: []schema.Node{
		variable("a", "x", "1"),
		{ID: "b", Type: "test-cancel"},
		variable("c", "y", "2"),
	}}

	res, err := eng.Run(ctx, wf, nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeCancelled, schema.CodeOf(err))

	rec := res.Record
	assert.Equal(t, schema.RunStatusCancelled, rec.Status)
	assert.Equal(t, []string{"a", "b"}, stepIDs(rec))
	for _, s := range rec.Steps {
		assert.Equal(t, schema.StepStatusSuccess, s.Status)
	}
	_, ran := res.Variables["y"]
	assert.False(t, ran)
	require.Len(t, eng.sink.records, 1)
	assert.Equal(t, schema.RunStatusCancelled, eng.sink.records[0].Status)
}

func TestRun_CancelDuringNode(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	prompter := promptFunc(func(ctx context.Context, _ schema.PromptRequest) (schema.PromptResponse, error) {
		cancel()
		<-ctx.Done()
		return schema.PromptResponse{}, ctx.Err()
	})
	eng := newTestEngine(t, &providers.Bundle{Prompter: prompter})
	wf := &schema.Workflow{Name: "ask", Nodes: []schema.Node{
		{ID: "ask", Type: schema.NodeDialog, Properties: map[string]string{"message": "?"}},
		variable("after", "x", "1"),
	}}

	res, err := eng.Run(ctx, wf, nil)
	require.Error(t, err)
	rec := res.Record
	assert.Equal(t, schema.RunStatusCancelled, rec.Status)
	require.Len(t, rec.Steps, 1)
	assert.Equal(t, schema.StepStatusError, rec.Steps[0].Status)
	assert.Equal(t, "execution cancelled", rec.Steps[0].Error)
}

func TestRun_UserCancel(t *testing.T) {
	dismiss := promptFunc(func(context.Context, schema.PromptRequest) (schema.PromptResponse, error) {
		return schema.PromptResponse{Cancelled: true}, nil
	})

	t.Run("without fallback cancels the run", func(t *testing.T) {
		eng := newTestEngine(t, &providers.Bundle{Prompter: dismiss})
		wf := &schema.Workflow{Name: "ask", Nodes: []schema.Node{
			{ID: "ask", Type: schema.NodeDialog},
			variable("after", "x", "1"),
		}}
		res, err := eng.Run(context.Background(), wf, nil)
		assert.Equal(t, schema.ErrCodeUserCancelled, schema.CodeOf(err))
		assert.Equal(t, schema.RunStatusCancelled, res.Record.Status)
		require.Len(t, res.Record.Steps, 1)
		assert.Equal(t, schema.StepStatusSkipped, res.Record.Steps[0].Status)
	})

	t.Run("with fallback continues there", func(t *testing.T) {
		eng := newTestEngine(t, &providers.Bundle{Prompter: dismiss})
		wf := &schema.Workflow{Name: "ask", Nodes: []schema.Node{
			{ID: "ask", Type: schema.NodeDialog, Next: "after", FalseNext: "fallback"},
			variable("after", "x", "1"),
			variable("fallback", "x", "fallback"),
		}}
		res, err := eng.Run(context.Background(), wf, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"ask", "fallback"}, stepIDs(res.Record))
		assert.Equal(t, schema.StepStatusSkipped, res.Record.Steps[0].Status)
		assert.Equal(t, "fallback", res.Variables["x"])
	})
}

func TestRun_FatalErrorStopsRun(t *testing.T) {
	eng := newTestEngine(t, nil)
	wf := &schema.Workflow{Name: "llm", Nodes: []schema.Node{
		variable("a", "x", "1"),
		{ID: "ask", Type: schema.NodeCommand, Properties: map[string]string{"prompt": "hi"}},
		variable("b", "y", "2"),
	}}

	res, err := eng.Run(context.Background(), wf, nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeProvider, schema.CodeOf(err))

	rec := res.Record
	assert.Equal(t, schema.RunStatusError, rec.Status)
	assert.Equal(t, []string{"a", "ask"}, stepIDs(rec))
	failed := rec.FailedStep()
	require.NotNil(t, failed)
	assert.Equal(t, "ask", failed.NodeID)
	assert.Contains(t, failed.Error, "no llm provider configured")
	assert.Equal(t, failed.Error, rec.Error)
}

func TestRun_LoadTimeErrors(t *testing.T) {
	tests := []struct {
		name string
		wf   *schema.Workflow
		code string
	}{
		{"nil", nil, schema.ErrCodeValidation},
		{"empty", &schema.Workflow{Name: "e"}, schema.ErrCodeValidation},
		{"duplicate", &schema.Workflow{Name: "d", Nodes: []schema.Node{variable("a", "x", "1"), variable("a", "y", "2")}}, schema.ErrCodeValidation},
		{"dangling", &schema.Workflow{Name: "g", Nodes: []schema.Node{{ID: "a", Type: schema.NodeVariable, Next: "ghost"}}}, schema.ErrCodeDanglingReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newTestEngine(t, nil)
			res, err := eng.Run(context.Background(), tt.wf, nil)
			assert.Nil(t, res)
			assert.Equal(t, tt.code, schema.CodeOf(err))
			assert.Empty(t, eng.sink.records)
		})
	}
}

func TestRun_SubWorkflowRoundTrip(t *testing.T) {
	child := &schema.Workflow{Name: "child", Nodes: []schema.Node{
		{ID: "work", Type: schema.NodeSet, Properties: map[string]string{"name": "child", "value": "{{child}} world"}},
	}}
	parent := func(scoped string) *schema.Workflow {
		return &schema.Workflow{Name: "parent", Nodes: []schema.Node{
			variable("init", "parent", "hello"),
			{ID: "call", Type: schema.NodeWorkflow, Properties: map[string]string{
				"path":   "child.yaml",
				"input":  `{"child": "{{parent}}"}`,
				"output": `{"parent": "child"}`,
				"scoped": scoped,
			}},
		}}
	}
	bundle := &providers.Bundle{Workflows: mapResolver{"child.yaml": child}}

	t.Run("shared record", func(t *testing.T) {
		eng := newTestEngine(t, bundle)
		res, err := eng.Run(context.Background(), parent("false"), nil)
		require.NoError(t, err)
		assert.Equal(t, "hello world", res.Variables["parent"])
		_, leaked := res.Variables["child"]
		assert.False(t, leaked)

		assert.Equal(t, []string{"init", "work", "call"}, stepIDs(res.Record))
		assert.Equal(t, "child", res.Record.Steps[1].Workflow)
	})

	t.Run("scoped record", func(t *testing.T) {
		eng := newTestEngine(t, bundle)
		res, err := eng.Run(context.Background(), parent("true"), nil)
		require.NoError(t, err)
		assert.Equal(t, "hello world", res.Variables["parent"])
		assert.Equal(t, []string{"init", "call"}, stepIDs(res.Record))
	})
}

func TestRun_SubWorkflowFailureUnwinds(t *testing.T) {
	child := &schema.Workflow{Name: "child", Nodes: []schema.Node{
		{ID: "boom", Type: schema.NodeJSON, Properties: map[string]string{"source": "not json"}},
	}}
	parent := &schema.Workflow{Name: "parent", Nodes: []schema.Node{
		{ID: "call", Type: schema.NodeWorkflow, Properties: map[string]string{"path": "child"}},
		variable("after", "x", "1"),
	}}
	eng := newTestEngine(t, &providers.Bundle{Workflows: mapResolver{"child": child}})

	res, err := eng.Run(context.Background(), parent, nil)
	require.Error(t, err)
	assert.Equal(t, schema.RunStatusError, res.Record.Status)
	assert.Equal(t, []string{"boom", "call"}, stepIDs(res.Record))
	assert.Equal(t, schema.StepStatusError, res.Record.Steps[0].Status)
	assert.Equal(t, schema.StepStatusError, res.Record.Steps[1].Status)
}

func TestRun_NestingDepthLimit(t *testing.T) {
	self := &schema.Workflow{Name: "self", Nodes: []schema.Node{
		{ID: "again", Type: schema.NodeWorkflow, Properties: map[string]string{"path": "self"}},
	}}
	reg := nodes.NewDefaultRegistry()
	eng := New(nodes.NewDispatcher(reg, &providers.Bundle{Workflows: mapResolver{"self": self}}, nil),
		nil, nil, Config{MaxDepth: 3}, nil)

	res, err := eng.Run(context.Background(), self, nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeExecution, schema.CodeOf(err))
	assert.Contains(t, err.Error(), "exceeds 3 levels")
	assert.Len(t, res.Record.Steps, 4)
}

func TestRun_RunIDFromContext(t *testing.T) {
	eng := newTestEngine(t, nil)
	ctx := logging.WithRunID(context.Background(), "run-fixed")

	res, err := eng.Run(ctx, countWorkflow(), nil)
	require.NoError(t, err)
	assert.Equal(t, "run-fixed", res.Record.ID)
}

func TestRun_PublishesLifecycleEvents(t *testing.T) {
	eng := newTestEngine(t, nil)
	ctx := logging.WithRunID(context.Background(), "run-events")
	events, unsubscribe, err := eng.hub.Subscribe(ctx, streaming.EventFilter{
		RunID: "run-events",
		EventTypes: []string{
			schema.EventRunStarted, schema.EventStepCompleted,
			schema.EventConditionEvaluated, schema.EventRunCompleted,
		},
	})
	require.NoError(t, err)
	defer unsubscribe()

	_, err = eng.Run(ctx, countWorkflow(), nil)
	require.NoError(t, err)

	var got []string
	timeout := time.After(time.Second)
	for len(got) == 0 || got[len(got)-1] != schema.EventRunCompleted {
		select {
		case ev := <-events:
			got = append(got, ev.EventType)
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}

	counts := map[string]int{}
	for _, e := range got {
		counts[e]++
	}
	assert.Equal(t, schema.EventRunStarted, got[0])
	assert.Equal(t, 7, counts[schema.EventStepCompleted])
	assert.Equal(t, 3, counts[schema.EventConditionEvaluated])
	assert.Equal(t, 1, counts[schema.EventRunCompleted])
}

func TestObservePrompts(t *testing.T) {
	hub := streaming.NewMemoryHub()
	events, unsubscribe, err := hub.Subscribe(context.Background(), streaming.EventFilter{})
	require.NoError(t, err)
	defer unsubscribe()

	inner := promptFunc(func(context.Context, schema.PromptRequest) (schema.PromptResponse, error) {
		return schema.PromptResponse{Value: "ok"}, nil
	})
	p := ObservePrompts(inner, hub)

	resp, err := p.Prompt(context.Background(), schema.PromptRequest{RunID: "r", NodeID: "n"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Value)

	first, second := <-events, <-events
	assert.Equal(t, schema.EventPromptRequested, first.EventType)
	assert.Equal(t, schema.EventPromptResolved, second.EventType)
	assert.Equal(t, "r", second.RunID)
}
