package nodes

import (
	"context"
	"sync"
	"testing"

	"github.com/rendis/stepwise/internal/expressions"
	"github.com/rendis/stepwise/internal/providers"
	"github.com/rendis/stepwise/pkg/schema"
	"github.com/stretchr/testify/require"
)

// --- fakes shared by the handler tests ---

type fakeLLM struct {
	resp *providers.CompletionResponse
	err  error
	got  providers.CompletionRequest
}

func (f *fakeLLM) Complete(_ context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeHTTP struct {
	resp *providers.HTTPResponse
	err  error
	got  providers.HTTPRequest
}

func (f *fakeHTTP) Do(_ context.Context, req providers.HTTPRequest) (*providers.HTTPResponse, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeMCP struct {
	result *providers.ToolResult
	err    error
	args   map[string]any
}

func (f *fakeMCP) CallTool(_ context.Context, _, _ string, args map[string]any) (*providers.ToolResult, error) {
	f.args = args
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeMCP) ListTools(context.Context, string) ([]providers.ToolSpec, error) { return nil, nil }

// scriptedPrompter answers prompts in order and records what it was asked.
type scriptedPrompter struct {
	mu        sync.Mutex
	responses []schema.PromptResponse
	asked     []schema.PromptRequest
}

func (p *scriptedPrompter) Prompt(ctx context.Context, req schema.PromptRequest) (schema.PromptResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asked = append(p.asked, req)
	if err := ctx.Err(); err != nil {
		return schema.PromptResponse{}, err
	}
	if len(p.responses) == 0 {
		return schema.PromptResponse{Cancelled: true}, nil
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

type fakeHost struct {
	opened  []string
	invoked string
	args    map[string]string
}

func (h *fakeHost) Invoke(_ context.Context, id string, args map[string]string) (any, error) {
	h.invoked = id
	h.args = args
	return "ok", nil
}

func (h *fakeHost) Open(_ context.Context, path string) error {
	h.opened = append(h.opened, path)
	return nil
}

type fakeRAG struct {
	synced   string
	snippets []providers.Snippet
}

func (r *fakeRAG) Sync(_ context.Context, folder string) (int, error) {
	r.synced = folder
	return 3, nil
}

func (r *fakeRAG) Query(context.Context, string, int) ([]providers.Snippet, error) {
	return r.snippets, nil
}

type mapResolver map[string]*schema.Workflow

func (m mapResolver) Resolve(_ context.Context, ref string) (*schema.Workflow, error) {
	wf, ok := m[ref]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", ref)
	}
	return wf, nil
}

// stubSub stands in for the engine: it runs fn against the child scope.
type stubSub struct {
	fn       func(scope *expressions.Scope) error
	isolated bool
	ran      *schema.Workflow
}

func (s *stubSub) RunSub(_ context.Context, wf *schema.Workflow, scope *expressions.Scope, isolated bool) error {
	s.ran = wf
	s.isolated = isolated
	if s.fn == nil {
		return nil
	}
	return s.fn(scope)
}

// --- helpers ---

func newTestDispatcher(bundle *providers.Bundle) *Dispatcher {
	return NewDispatcher(NewDefaultRegistry(), bundle, nil)
}

func newTestFiles(t *testing.T) *providers.LocalFS {
	t.Helper()
	fs, err := providers.NewLocalFS(t.TempDir())
	require.NoError(t, err)
	return fs
}

func node(id string, kind schema.NodeType, props map[string]string) *schema.Node {
	return &schema.Node{ID: id, Type: kind, Properties: props}
}
