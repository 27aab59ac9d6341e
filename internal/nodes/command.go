package nodes

import (
	"context"
	"log/slog"

	"github.com/rendis/stepwise/internal/providers"
	"github.com/rendis/stepwise/pkg/schema"
)

const defaultRAGLimit = 5

// commandHandler invokes the LLM provider. When ragQuery is set, snippets
// retrieved from the RAG index are passed as context; tools names MCP tools
// ("server/tool") the model may request.
type commandHandler struct{}

func (commandHandler) Kind() schema.NodeType { return schema.NodeCommand }

func (commandHandler) Validate(node *schema.Node) error {
	return requireProps(node, "prompt")
}

func (commandHandler) Execute(ctx context.Context, call *Call) (*Outcome, error) {
	llm := call.Providers.LLM
	if llm == nil {
		return nil, providers.Missing("llm")
	}

	req := providers.CompletionRequest{
		Model:        call.Prop("model"),
		SystemPrompt: call.Prop("systemPrompt"),
		Prompt:       call.Prop("prompt"),
		Temperature:  floatPropPtr(call.Props, "temperature"),
		MaxTokens:    intProp(call.Props, "maxTokens", 0),
	}

	if q := call.Prop("ragQuery"); q != "" {
		if call.Providers.RAG == nil {
			return nil, providers.Missing("rag")
		}
		snippets, err := call.Providers.RAG.Query(ctx, q, intProp(call.Props, "ragLimit", defaultRAGLimit))
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeProvider, "retrieval failed: %v", err).WithCause(err)
		}
		for _, s := range snippets {
			req.Context = append(req.Context, s.Text)
		}
	}

	for _, name := range listProp(call.Props, "tools") {
		req.Tools = append(req.Tools, providers.ToolSpec{Name: name})
	}

	resp, err := llm.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	call.Logger.DebugContext(ctx, "model call completed",
		slog.String("model", resp.Model),
		slog.Int("chars", len(resp.Text)),
	)

	out := success(resp.Text).save(call.Prop("saveTo"), resp.Text)
	if resp.Image != "" {
		out.save(call.Prop("saveImageTo"), resp.Image)
	}
	if len(resp.ToolCalls) > 0 {
		out.save(call.Prop("saveToolCallsTo"), resp.ToolCalls)
	}
	return out, nil
}
