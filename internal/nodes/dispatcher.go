package nodes

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rendis/stepwise/internal/expressions"
	"github.com/rendis/stepwise/internal/logging"
	"github.com/rendis/stepwise/internal/providers"
	"github.com/rendis/stepwise/pkg/schema"
)

// Dispatcher runs one node: it resolves templated properties, hands the call
// to the kind's handler, applies variable writes and maps failures according
// to the node's failure policy.
type Dispatcher struct {
	registry  *Registry
	providers *providers.Bundle
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher. A nil bundle behaves as an empty one.
func NewDispatcher(registry *Registry, bundle *providers.Bundle, logger *slog.Logger) *Dispatcher {
	if bundle == nil {
		bundle = &providers.Bundle{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, providers: bundle, logger: logger}
}

// Registry returns the handler registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch executes node against scope.
//
// A returned error is fatal for the run. Errors are absorbed into the
// Outcome (status error, run continues) when the node sets bestEffort, unless
// the failure is a cancellation.
func (d *Dispatcher) Dispatch(ctx context.Context, node *schema.Node, scope *expressions.Scope, sub SubRunner) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, schema.NewError(schema.ErrCodeCancelled, "execution cancelled").WithNode(node.ID).WithCause(err)
	}

	h, err := d.registry.Get(node.Type)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown node type %q", node.Type).WithNode(node.ID).WithCause(err)
	}

	raw := node.Properties
	if raw == nil {
		raw = map[string]string{}
	}
	var skip []string
	if node.Type.IsBranch() {
		skip = append(skip, "condition")
	}
	if rp, ok := h.(rawProperties); ok {
		skip = append(skip, rp.RawProperties()...)
	}
	props := expressions.ResolveProperties(raw, scope, skip...)

	call := &Call{
		Node:      node,
		Props:     props,
		Raw:       raw,
		Scope:     scope,
		Providers: d.providers,
		Sub:       sub,
		RunID:     logging.RunIDFrom(ctx),
		Logger:    d.logger,
	}

	ctx = logging.WithNodeID(ctx, node.ID)
	d.logger.DebugContext(ctx, "dispatching node", slog.String("type", string(node.Type)))

	out, err := h.Execute(ctx, call)
	if err != nil {
		return d.handleFailure(ctx, node, scope, props, err)
	}
	if out == nil {
		out = success(nil)
	}
	if out.Status == "" {
		out.Status = schema.StepStatusSuccess
	}
	if out.Input == nil {
		out.Input = propsSnapshot(props)
	}
	for name, value := range out.Vars {
		scope.Set(name, value)
	}
	return out, nil
}

func (d *Dispatcher) handleFailure(ctx context.Context, node *schema.Node, scope *expressions.Scope, props map[string]string, err error) (*Outcome, error) {
	var se *schema.Error
	if !errors.As(err, &se) {
		se = schema.NewError(schema.ErrCodeStepFailed, err.Error()).WithCause(err)
	}
	if se.NodeID == "" {
		se.NodeID = node.ID
	}

	if ctx.Err() != nil || se.Code == schema.ErrCodeCancelled {
		return nil, schema.NewError(schema.ErrCodeCancelled, "execution cancelled").WithNode(node.ID).WithCause(err)
	}
	if se.Code == schema.ErrCodeUserCancelled || !boolProp(props, "bestEffort", false) {
		return nil, se
	}

	d.logger.WarnContext(ctx, "best-effort node failed",
		slog.String("type", string(node.Type)),
		slog.String("error", se.Message),
	)
	if errVar := props["errorTo"]; errVar != "" {
		scope.Set(errVar, se.Message)
	}
	return &Outcome{Status: schema.StepStatusError, Err: se.Message, Input: propsSnapshot(props)}, nil
}

func propsSnapshot(props map[string]string) map[string]any {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
