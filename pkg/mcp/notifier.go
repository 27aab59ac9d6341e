package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/stepwise/internal/streaming"
)

// RunNotifier forwards a run's stream events to the MCP session that
// started it as notifications/message.
type RunNotifier struct {
	mcpServer *server.MCPServer
	hub       streaming.EventHub
	logger    *slog.Logger
}

// NewRunNotifier creates a notifier over hub.
func NewRunNotifier(mcpServer *server.MCPServer, hub streaming.EventHub, logger *slog.Logger) *RunNotifier {
	return &RunNotifier{mcpServer: mcpServer, hub: hub, logger: logger}
}

// Follow forwards events of runID to the session in ctx until stop is
// called. Without a client session it does nothing.
func (n *RunNotifier) Follow(ctx context.Context, runID string) (stop func()) {
	session := server.ClientSessionFromContext(ctx)
	if session == nil {
		return func() {}
	}
	sessionID := session.SessionID()

	events, unsubscribe, err := n.hub.Subscribe(context.WithoutCancel(ctx), streaming.EventFilter{RunID: runID})
	if err != nil {
		n.logger.WarnContext(ctx, "run notifications unavailable", slog.String("error", err.Error()))
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", map[string]any{
				"level":  "info",
				"logger": "stepwise",
				"data": map[string]any{
					"run_id":     ev.RunID,
					"event_type": ev.EventType,
					"node_id":    ev.NodeID,
					"workflow":   ev.Workflow,
					"payload":    ev.Payload,
				},
			})
			if err != nil && !errors.Is(err, server.ErrSessionNotFound) {
				n.logger.Debug("run notification not delivered",
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()),
				)
			}
		}
	}()

	return func() {
		unsubscribe()
		<-done
	}
}
