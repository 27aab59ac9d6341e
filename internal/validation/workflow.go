// Package validation checks workflows before they run. It layers a JSON
// Schema structure check, per-kind semantic checks driven by the node
// handler registry, and a graph check.
package validation

import (
	"github.com/rendis/stepwise/internal/nodes"
	"github.com/rendis/stepwise/pkg/schema"
)

// WorkflowValidator orchestrates the three-stage validation pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (known kinds, required properties)
// 3. Graph (ids, references, reachability)
type WorkflowValidator struct {
	structure *StructureValidator
	kinds     KindLookup
}

// NewWorkflowValidator creates a WorkflowValidator.
// reg may be nil to skip kind and property checks.
func NewWorkflowValidator(reg *nodes.Registry) (*WorkflowValidator, error) {
	sv, err := NewStructureValidator()
	if err != nil {
		return nil, err
	}
	wv := &WorkflowValidator{structure: sv}
	if reg != nil {
		wv.kinds = registryLookup{reg}
	}
	return wv, nil
}

// Validate runs the full pipeline and returns an aggregated result.
// Structural errors short-circuit the later stages.
func (wv *WorkflowValidator) Validate(wf *schema.Workflow) *schema.ValidationResult {
	result := wv.structure.ValidateWorkflow(wf)
	if !result.Valid() {
		return result
	}
	result.Merge(validateSemantic(wf, wv.kinds))
	result.Merge(validateGraph(wf))
	return result
}

// ValidateDocument checks raw JSON first, which catches shape errors that
// decoding into schema.Workflow would hide.
func (wv *WorkflowValidator) ValidateDocument(raw []byte, wf *schema.Workflow) *schema.ValidationResult {
	result := wv.structure.ValidateDocument(raw)
	if !result.Valid() || wf == nil {
		return result
	}
	result.Merge(validateSemantic(wf, wv.kinds))
	result.Merge(validateGraph(wf))
	return result
}

// Validate checks wf against the built-in node kinds.
func Validate(wf *schema.Workflow) *schema.ValidationResult {
	wv, err := NewWorkflowValidator(nodes.NewDefaultRegistry())
	if err != nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, err.Error())
		return r
	}
	return wv.Validate(wf)
}

type registryLookup struct {
	reg *nodes.Registry
}

func (l registryLookup) ValidateNode(node *schema.Node) (bool, error) {
	h, err := l.reg.Get(node.Type)
	if err != nil {
		return false, nil
	}
	return true, h.Validate(node)
}
