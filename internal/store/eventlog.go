package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rendis/stepwise/internal/streaming"
)

// EventLog persists stream events per run on top of a LibSQLStore.
type EventLog struct {
	store *LibSQLStore
}

// NewEventLog wraps a LibSQLStore to persist run events.
func NewEventLog(s *LibSQLStore) *EventLog {
	return &EventLog{store: s}
}

// Append stores ev with a monotonically increasing per-run sequence.
func (el *EventLog) Append(ctx context.Context, ev streaming.StreamEvent) (*RunEvent, error) {
	if ev.RunID == "" {
		return nil, fmt.Errorf("event has no run id")
	}
	payload, err := nullJSON(ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	tx, err := el.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM run_events WHERE run_id = ?`, ev.RunID,
	).Scan(&seq); err != nil {
		return nil, fmt.Errorf("get next sequence: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO run_events (run_id, sequence, event_type, node_id, workflow, payload, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.RunID, seq, ev.EventType, nullStr(ev.NodeID), nullStr(ev.Workflow), payload, ts,
	); err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit event: %w", err)
	}

	var text string
	if s, ok := payload.(string); ok {
		text = s
	}
	return &RunEvent{
		RunID: ev.RunID, Sequence: seq, Type: ev.EventType, NodeID: ev.NodeID,
		Workflow: ev.Workflow, Payload: text, Timestamp: ts,
	}, nil
}

// Events returns the events of a run with sequence > since, ordered by sequence.
func (el *EventLog) Events(ctx context.Context, runID string, since int64) ([]*RunEvent, error) {
	rows, err := el.store.DB().QueryContext(ctx,
		`SELECT run_id, sequence, event_type, node_id, workflow, payload, timestamp
		 FROM run_events WHERE run_id = ? AND sequence > ? ORDER BY sequence ASC`, runID, since)
	if err != nil {
		return nil, storeErr("get events", err)
	}
	defer rows.Close()

	var out []*RunEvent
	for rows.Next() {
		e := &RunEvent{}
		var nodeID, workflow, payload sql.NullString
		if err := rows.Scan(&e.RunID, &e.Sequence, &e.Type, &nodeID, &workflow, &payload, &e.Timestamp); err != nil {
			return nil, storeErr("scan event", err)
		}
		e.NodeID, e.Workflow, e.Payload = nodeID.String, workflow.String, payload.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Record subscribes to hub and appends every matching event until ctx is
// cancelled or the subscription closes. Append failures are logged and
// skipped.
func (el *EventLog) Record(ctx context.Context, hub streaming.EventHub, filter streaming.EventFilter, logger *slog.Logger) error {
	done, err := el.Follow(ctx, hub, filter, logger)
	if err != nil {
		return err
	}
	<-done
	return nil
}

// Follow subscribes before returning, so no event published afterwards is
// missed, and persists events in the background. Once ctx is cancelled the
// events already buffered are still written; done closes after that.
func (el *EventLog) Follow(ctx context.Context, hub streaming.EventHub, filter streaming.EventFilter, logger *slog.Logger) (<-chan struct{}, error) {
	if logger == nil {
		logger = slog.Default()
	}
	events, unsubscribe, err := hub.Subscribe(ctx, filter)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	writeCtx := context.WithoutCancel(ctx)
	persist := func(ev streaming.StreamEvent) {
		if _, err := el.Append(writeCtx, ev); err != nil {
			logger.WarnContext(ctx, "persisting run event failed",
				slog.String("run_id", ev.RunID),
				slog.String("event_type", ev.EventType),
				slog.String("error", err.Error()),
			)
		}
	}

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				unsubscribe()
				for ev := range events {
					persist(ev)
				}
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				persist(ev)
			}
		}
	}()
	return done, nil
}

// DecodePayload unmarshals a persisted payload into v.
func (e *RunEvent) DecodePayload(v any) error {
	if e.Payload == "" {
		return nil
	}
	return json.Unmarshal([]byte(e.Payload), v)
}
