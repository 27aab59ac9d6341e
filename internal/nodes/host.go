package nodes

import (
	"context"

	"github.com/rendis/stepwise/internal/providers"
	"github.com/rendis/stepwise/pkg/schema"
)

type ragSyncHandler struct{}

func (ragSyncHandler) Kind() schema.NodeType { return schema.NodeRAGSync }

func (ragSyncHandler) Validate(*schema.Node) error { return nil }

func (ragSyncHandler) Execute(ctx context.Context, call *Call) (*Outcome, error) {
	if call.Providers.RAG == nil {
		return nil, providers.Missing("rag")
	}
	n, err := call.Providers.RAG.Sync(ctx, call.Prop("folder"))
	if err != nil {
		return nil, err
	}
	return success(n).save(call.Prop("saveTo"), n), nil
}

// hostCommandHandler invokes a host command by id. args is a JSON object
// whose values are templated and passed as strings.
type hostCommandHandler struct{}

func (hostCommandHandler) Kind() schema.NodeType { return schema.NodeHostCommand }

func (hostCommandHandler) RawProperties() []string { return []string{"args"} }

func (hostCommandHandler) Validate(node *schema.Node) error {
	if err := requireProps(node, "commandId"); err != nil {
		return err
	}
	return validateJSONMapProp(node, "args")
}

func (hostCommandHandler) Execute(ctx context.Context, call *Call) (*Outcome, error) {
	if call.Providers.Host == nil {
		return nil, providers.Missing("host")
	}
	args, err := stringMapProp(call.Raw, "args", call.Scope)
	if err != nil {
		return nil, err
	}
	result, err := call.Providers.Host.Invoke(ctx, call.Prop("commandId"), args)
	if err != nil {
		return nil, err
	}
	return success(result).save(call.Prop("saveTo"), result), nil
}
