package validation

import (
	"errors"
	"fmt"

	"github.com/rendis/stepwise/pkg/schema"
)

// KindLookup resolves node kinds to their property validators.
// *nodes.Registry satisfies it through an adapter in workflow.go.
type KindLookup interface {
	ValidateNode(node *schema.Node) (known bool, err error)
}

// validateSemantic checks every node's kind and per-kind properties, and
// flags successor pointers the walker will never follow.
func validateSemantic(wf *schema.Workflow, kinds KindLookup) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	for i := range wf.Nodes {
		n := &wf.Nodes[i]

		if kinds != nil {
			known, err := kinds.ValidateNode(n)
			if !known {
				result.AddNodeError(i, n.ID, "type", schema.ErrCodeValidation,
					fmt.Sprintf("node %s: unknown node type %q", n.ID, n.Type))
				continue
			}
			if err != nil {
				result.AddNodeError(i, n.ID, "properties", codeFor(err), messageOf(err))
			}
		}

		if n.Type.IsBranch() {
			if n.Next != "" {
				result.AddNodeWarning(i, n.ID, "next", schema.ErrCodeValidation,
					fmt.Sprintf("node %s: next is ignored on %s nodes", n.ID, n.Type))
			}
		} else if n.TrueNext != "" {
			result.AddNodeWarning(i, n.ID, "trueNext", schema.ErrCodeValidation,
				fmt.Sprintf("node %s: trueNext is ignored on %s nodes", n.ID, n.Type))
		}
	}
	return result
}

func codeFor(err error) string {
	if code := schema.CodeOf(err); code != "" {
		return code
	}
	return schema.ErrCodeValidation
}

func messageOf(err error) string {
	var se *schema.Error
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
