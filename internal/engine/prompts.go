package engine

import (
	"context"

	"github.com/rendis/stepwise/internal/providers"
	"github.com/rendis/stepwise/internal/streaming"
	"github.com/rendis/stepwise/pkg/schema"
)

// ObservePrompts wraps p so that every request and its resolution are
// published on hub.
func ObservePrompts(p providers.Prompter, hub streaming.EventHub) providers.Prompter {
	if p == nil || hub == nil {
		return p
	}
	return &observedPrompter{next: p, hub: hub}
}

type observedPrompter struct {
	next providers.Prompter
	hub  streaming.EventHub
}

func (o *observedPrompter) Prompt(ctx context.Context, req schema.PromptRequest) (schema.PromptResponse, error) {
	_ = o.hub.Publish(ctx, streaming.StreamEvent{
		RunID:     req.RunID,
		NodeID:    req.NodeID,
		EventType: schema.EventPromptRequested,
		Payload:   req,
	})
	resp, err := o.next.Prompt(ctx, req)
	payload := map[string]any{"cancelled": resp.Cancelled}
	if err != nil {
		payload["error"] = err.Error()
	}
	_ = o.hub.Publish(context.WithoutCancel(ctx), streaming.StreamEvent{
		RunID:     req.RunID,
		NodeID:    req.NodeID,
		EventType: schema.EventPromptResolved,
		Payload:   payload,
	})
	return resp, err
}
