package nodes

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rendis/stepwise/internal/expressions"
	"github.com/rendis/stepwise/pkg/schema"
)

// jsonHandler parses structured text and optionally runs a jq query over it.
type jsonHandler struct {
	jq *expressions.GoJQEngine
}

func (jsonHandler) Kind() schema.NodeType { return schema.NodeJSON }

func (h jsonHandler) Validate(node *schema.Node) error {
	if err := requireProps(node, "source"); err != nil {
		return err
	}
	q := strings.TrimSpace(node.Prop("query"))
	if q == "" || strings.Contains(q, "{{") {
		return nil
	}
	if err := h.jq.Check(q); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "json node %q: %s", node.ID, err.Error()).
			WithCause(err).
			WithNode(node.ID)
	}
	return nil
}

func (h jsonHandler) Execute(ctx context.Context, call *Call) (*Outcome, error) {
	src := strings.TrimSpace(call.Prop("source"))
	var doc any
	if err := json.Unmarshal([]byte(src), &doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStepFailed, "source is not valid JSON: %v", err).WithCause(err)
	}

	result := doc
	if q := call.Prop("query"); q != "" {
		var err error
		result, err = h.jq.Query(ctx, q, doc, call.Scope.Snapshot())
		if err != nil {
			return nil, err
		}
	}
	return success(result).save(call.Prop("saveTo"), result), nil
}
