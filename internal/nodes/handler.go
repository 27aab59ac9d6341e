package nodes

import (
	"context"
	"log/slog"

	"github.com/rendis/stepwise/internal/expressions"
	"github.com/rendis/stepwise/internal/providers"
	"github.com/rendis/stepwise/pkg/schema"
)

// Handler executes one node kind.
type Handler interface {
	Kind() schema.NodeType
	Validate(node *schema.Node) error
	Execute(ctx context.Context, call *Call) (*Outcome, error)
}

// rawProperties is implemented by handlers that resolve some properties
// themselves, for example JSON maps whose values carry placeholders.
type rawProperties interface {
	RawProperties() []string
}

// SubRunner walks a nested workflow against its own scope. isolated runs
// keep their steps out of the caller's record.
type SubRunner interface {
	RunSub(ctx context.Context, wf *schema.Workflow, scope *expressions.Scope, isolated bool) error
}

// Call is everything a handler sees for one node visit.
type Call struct {
	Node      *schema.Node
	Props     map[string]string // resolved against Scope
	Raw       map[string]string // as authored
	Scope     *expressions.Scope
	Providers *providers.Bundle
	Sub       SubRunner
	RunID     string
	Logger    *slog.Logger
}

// Prop returns a resolved property.
func (c *Call) Prop(name string) string {
	return c.Props[name]
}

// Outcome is a handler's result. Vars are written into the scope by the
// dispatcher. Err carries a non-fatal error recorded on the step.
type Outcome struct {
	Status schema.StepStatus
	Output any
	Vars   map[string]any
	Branch *bool
	Err    string
	Input  map[string]any
}

func success(output any) *Outcome {
	return &Outcome{Status: schema.StepStatusSuccess, Output: output}
}

func skipped(reason string) *Outcome {
	return &Outcome{Status: schema.StepStatusSkipped, Err: reason}
}

// save records value under the variable named by the saveTo-style property.
func (o *Outcome) save(name string, value any) *Outcome {
	if name == "" {
		return o
	}
	if o.Vars == nil {
		o.Vars = make(map[string]any)
	}
	o.Vars[name] = value
	return o
}
