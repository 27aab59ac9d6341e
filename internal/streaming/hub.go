package streaming

import (
	"context"
	"time"
)

// StreamEvent is a real-time event emitted during a workflow run.
type StreamEvent struct {
	RunID     string    `json:"run_id"`
	NodeID    string    `json:"node_id,omitempty"`
	Workflow  string    `json:"workflow,omitempty"`
	EventType string    `json:"event_type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	RunID      string   `json:"run_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time run events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}

// Discard is an EventHub that drops every event.
var Discard EventHub = discardHub{}

type discardHub struct{}

func (discardHub) Publish(context.Context, StreamEvent) error { return nil }

func (discardHub) Subscribe(ctx context.Context, _ EventFilter) (<-chan StreamEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return make(chan StreamEvent), func() {}, nil
}
