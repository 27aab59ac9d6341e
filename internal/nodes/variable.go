package nodes

import (
	"context"

	"github.com/rendis/stepwise/internal/expressions"
	"github.com/rendis/stepwise/pkg/schema"
)

// variableHandler initializes a variable from a literal. Numeric, boolean
// and JSON-looking values are stored typed.
type variableHandler struct{}

func (variableHandler) Kind() schema.NodeType { return schema.NodeVariable }

func (variableHandler) Validate(node *schema.Node) error {
	return requireProps(node, "name")
}

func (variableHandler) Execute(_ context.Context, call *Call) (*Outcome, error) {
	name := call.Prop("name")
	if name == "" {
		return &Outcome{Err: "variable name is empty"}, nil
	}
	value := expressions.ParseLiteral(call.Prop("value"))
	return success(value).save(name, value), nil
}

// setHandler recomputes a variable. Pure arithmetic such as "3+1" is
// evaluated; a malformed expression stores 0.
type setHandler struct {
	exprs *expressions.ExprEngine
}

func (setHandler) Kind() schema.NodeType { return schema.NodeSet }

func (setHandler) Validate(node *schema.Node) error {
	return requireProps(node, "name")
}

func (h setHandler) Execute(ctx context.Context, call *Call) (*Outcome, error) {
	name := call.Prop("name")
	if name == "" {
		return &Outcome{Err: "variable name is empty"}, nil
	}
	raw := call.Prop("value")

	if boolProp(call.Props, "literal", false) {
		return success(raw).save(name, raw), nil
	}
	if !expressions.IsArithmetic(raw) {
		value := expressions.ParseLiteral(raw)
		return success(value).save(name, value), nil
	}

	out := &Outcome{}
	value, err := h.exprs.Arithmetic(ctx, raw)
	if err != nil {
		value = 0
		out.Err = err.Error()
	}
	out.Output = value
	return out.save(name, value), nil
}
