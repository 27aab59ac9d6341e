package nodes

import (
	"context"

	"github.com/rendis/stepwise/internal/providers"
	"github.com/rendis/stepwise/pkg/schema"
)

// mcpHandler calls a tool on a configured MCP server. A tool-reported
// error fails the node.
type mcpHandler struct{}

func (mcpHandler) Kind() schema.NodeType { return schema.NodeMCP }

func (mcpHandler) RawProperties() []string { return []string{"arguments"} }

func (mcpHandler) Validate(node *schema.Node) error {
	if err := requireProps(node, "server", "tool"); err != nil {
		return err
	}
	return validateJSONMapProp(node, "arguments")
}

func (mcpHandler) Execute(ctx context.Context, call *Call) (*Outcome, error) {
	client := call.Providers.MCP
	if client == nil {
		return nil, providers.Missing("mcp")
	}
	args, err := jsonMapProp(call.Raw, "arguments", call.Scope)
	if err != nil {
		return nil, err
	}

	server, tool := call.Prop("server"), call.Prop("tool")
	res, err := client.CallTool(ctx, server, tool, args)
	if err != nil {
		return nil, err
	}
	if res.IsError {
		return nil, schema.NewErrorf(schema.ErrCodeStepFailed, "tool %s/%s failed: %s", server, tool, res.Text)
	}

	value := decodeMaybeJSON(res.Text)
	out := success(value).save(call.Prop("saveTo"), value)
	out.Input = map[string]any{"server": server, "tool": tool, "arguments": args}
	return out, nil
}
