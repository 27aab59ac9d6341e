package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/stepwise/pkg/schema"
)

const workflowSchemaURL = "https://stepwise.dev/schemas/workflow.json"

// workflowSchemaJSON describes the authored shape of a workflow document.
// Node kinds are checked semantically against the handler registry.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://stepwise.dev/schemas/workflow.json",
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "name": { "type": "string" },
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/node" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id", "type"],
      "properties": {
        "id":        { "type": "string", "minLength": 1 },
        "type":      { "type": "string", "minLength": 1 },
        "properties": {
          "type": "object",
          "additionalProperties": { "type": "string" }
        },
        "next":      { "type": "string" },
        "trueNext":  { "type": "string" },
        "falseNext": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// StructureValidator checks workflow documents against the workflow JSON
// Schema. It is safe for concurrent use.
type StructureValidator struct {
	workflowSchema *jsonschema.Schema
}

// NewStructureValidator compiles the embedded workflow schema.
func NewStructureValidator() (*StructureValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(workflowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal workflow schema: %w", err)
	}
	if err := c.AddResource(workflowSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add workflow schema resource: %w", err)
	}
	compiled, err := c.Compile(workflowSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}
	return &StructureValidator{workflowSchema: compiled}, nil
}

// ValidateWorkflow checks a decoded workflow.
func (v *StructureValidator) ValidateWorkflow(wf *schema.Workflow) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if wf == nil {
		result.AddError("/", schema.ErrCodeValidation, "workflow is nil")
		return result
	}
	b, err := json.Marshal(wf)
	if err != nil {
		result.AddError("/", schema.ErrCodeValidation, "serialize workflow: "+err.Error())
		return result
	}
	return v.ValidateDocument(b)
}

// ValidateDocument checks a raw JSON workflow document before it is decoded,
// so type mismatches such as numeric property values are reported by path.
func (v *StructureValidator) ValidateDocument(raw []byte) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		result.AddError("/", schema.ErrCodeValidation, "invalid JSON: "+err.Error())
		return result
	}
	if err := v.workflowSchema.Validate(doc); err != nil {
		verr, ok := err.(*jsonschema.ValidationError)
		if !ok {
			result.AddError("/", schema.ErrCodeValidation, err.Error())
			return result
		}
		for _, viol := range collectViolations(verr) {
			result.AddError(viol.path, schema.ErrCodeValidation, viol.message)
		}
	}
	return result
}

type violation struct {
	path    string
	message string
}

// collectViolations walks a ValidationError tree and returns its leaves.
func collectViolations(verr *jsonschema.ValidationError) []violation {
	if len(verr.Causes) == 0 {
		return []violation{{path: "/" + strings.Join(verr.InstanceLocation, "/"), message: verr.Error()}}
	}
	var out []violation
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}
