package nodes

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rendis/stepwise/internal/providers"
	"github.com/rendis/stepwise/pkg/schema"
)

// workflowHandler runs another workflow in a child scope. input seeds the
// child (values templated against the caller), output maps parent variables
// to child variables once the child finishes and prefix copies every child
// variable back under a namespace.
type workflowHandler struct{}

func (workflowHandler) Kind() schema.NodeType { return schema.NodeWorkflow }

func (workflowHandler) RawProperties() []string { return []string{"input", "output"} }

func (workflowHandler) Validate(node *schema.Node) error {
	if err := requireProps(node, "path"); err != nil {
		return err
	}
	if err := validateJSONMapProp(node, "input"); err != nil {
		return err
	}
	return validateJSONMapProp(node, "output")
}

func (workflowHandler) Execute(ctx context.Context, call *Call) (*Outcome, error) {
	if call.Providers.Workflows == nil {
		return nil, providers.Missing("workflow resolver")
	}
	if call.Sub == nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "nested workflows are not supported here")
	}

	ref := call.Prop("path")
	wf, err := call.Providers.Workflows.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	input, err := jsonMapProp(call.Raw, "input", call.Scope)
	if err != nil {
		return nil, err
	}
	mapping, err := outputMapping(call.Raw["output"])
	if err != nil {
		return nil, err
	}

	child := call.Scope.Child(input)
	if err := call.Sub.RunSub(ctx, wf, child, boolProp(call.Props, "scoped", false)); err != nil {
		return nil, err
	}

	call.Scope.CopyOut(child, mapping, call.Prop("prefix"))
	result := child.Snapshot()

	out := success(result).save(call.Prop("saveTo"), result)
	out.Input = map[string]any{"path": ref, "input": input}
	return out, nil
}

func outputMapping(text string) (map[string]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "property %q must be a JSON object: %v", "output", err)
	}
	mapping := make(map[string]string, len(parsed))
	for parent, childName := range parsed {
		name, ok := childName.(string)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "output mapping for %q must name a child variable", parent)
		}
		mapping[parent] = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(name), "{{"), "}}")
	}
	return mapping, nil
}
