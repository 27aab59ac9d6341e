package nodes

import (
	"context"

	"github.com/rendis/stepwise/internal/expressions"
	"github.com/rendis/stepwise/pkg/schema"
)

// conditionHandler serves both if and while. The condition property is
// passed through unresolved so the evaluator resolves it exactly once.
// Evaluation errors select the false branch and are recorded, never fatal.
type conditionHandler struct {
	kind schema.NodeType
}

func (h conditionHandler) Kind() schema.NodeType { return h.kind }

func (conditionHandler) Validate(node *schema.Node) error {
	return requireProps(node, "condition")
}

func (conditionHandler) Execute(_ context.Context, call *Call) (*Outcome, error) {
	expr := call.Raw["condition"]
	result, err := expressions.Evaluate(expr, call.Scope)

	out := &Outcome{
		Output: result,
		Branch: &result,
		Input: map[string]any{
			"condition": expr,
			"resolved":  expressions.Resolve(expr, call.Scope),
		},
	}
	if err != nil {
		out.Err = err.Error()
	}
	return out, nil
}
