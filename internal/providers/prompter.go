package providers

import (
	"context"

	"github.com/google/uuid"
	"github.com/rendis/stepwise/pkg/schema"
)

// PendingPrompt is a suspended interactive request. Exactly one call to
// Respond (or Cancel) releases the waiting run.
type PendingPrompt struct {
	Request schema.PromptRequest
	reply   chan schema.PromptResponse
}

// Respond delivers the user's answer.
func (p PendingPrompt) Respond(resp schema.PromptResponse) {
	resp.RequestID = p.Request.ID
	select {
	case p.reply <- resp:
	default:
	}
}

// Cancel reports that the user dismissed the prompt.
func (p PendingPrompt) Cancel() {
	p.Respond(schema.PromptResponse{Cancelled: true})
}

// ChannelPrompter suspends the calling run by publishing each request on a
// channel and blocking until a response arrives or ctx is done. A UI or CLI
// consumes Requests and answers through PendingPrompt.
type ChannelPrompter struct {
	requests chan PendingPrompt
}

// NewChannelPrompter creates a ChannelPrompter.
func NewChannelPrompter() *ChannelPrompter {
	return &ChannelPrompter{requests: make(chan PendingPrompt)}
}

// Requests returns the channel of suspended prompts.
func (p *ChannelPrompter) Requests() <-chan PendingPrompt {
	return p.requests
}

func (p *ChannelPrompter) Prompt(ctx context.Context, req schema.PromptRequest) (schema.PromptResponse, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	pending := PendingPrompt{Request: req, reply: make(chan schema.PromptResponse, 1)}

	select {
	case p.requests <- pending:
	case <-ctx.Done():
		return schema.PromptResponse{}, schema.NewError(schema.ErrCodeCancelled, "prompt cancelled").WithCause(ctx.Err())
	}

	select {
	case resp := <-pending.reply:
		return resp, nil
	case <-ctx.Done():
		return schema.PromptResponse{}, schema.NewError(schema.ErrCodeCancelled, "prompt cancelled").WithCause(ctx.Err())
	}
}

// NonInteractive answers prompts without a user: requests with a default
// value get it, write confirmations are accepted when AllowWrites is set,
// everything else is reported as cancelled.
type NonInteractive struct {
	AllowWrites bool
}

func (n NonInteractive) Prompt(ctx context.Context, req schema.PromptRequest) (schema.PromptResponse, error) {
	if err := ctx.Err(); err != nil {
		return schema.PromptResponse{}, schema.NewError(schema.ErrCodeCancelled, "prompt cancelled").WithCause(err)
	}
	switch {
	case req.Kind == schema.PromptWriteFile || req.Kind == schema.PromptConfirm:
		if n.AllowWrites || req.Default == "true" {
			return schema.PromptResponse{RequestID: req.ID, Value: "true"}, nil
		}
	case req.Default != "":
		return schema.PromptResponse{RequestID: req.ID, Value: req.Default, Values: []string{req.Default}}, nil
	}
	return schema.PromptResponse{RequestID: req.ID, Cancelled: true}, nil
}

var (
	_ Prompter = (*ChannelPrompter)(nil)
	_ Prompter = NonInteractive{}
)
