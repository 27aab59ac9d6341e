package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stepwise/internal/streaming"
	"github.com/rendis/stepwise/pkg/schema"
)

func TestEventLogAppendSequence(t *testing.T) {
	s := newTestStore(t)
	el := NewEventLog(s)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ev, err := el.Append(ctx, streaming.StreamEvent{
			RunID:     "run-1",
			NodeID:    "n1",
			EventType: schema.EventStepCompleted,
			Payload:   map[string]any{"i": i},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), ev.Sequence)
	}

	other, err := el.Append(ctx, streaming.StreamEvent{RunID: "run-2", EventType: schema.EventRunStarted})
	require.NoError(t, err)
	assert.Equal(t, int64(1), other.Sequence)
}

func TestEventLogAppendRequiresRunID(t *testing.T) {
	el := NewEventLog(newTestStore(t))
	_, err := el.Append(context.Background(), streaming.StreamEvent{EventType: schema.EventRunStarted})
	assert.Error(t, err)
}

func TestEventLogEventsSince(t *testing.T) {
	s := newTestStore(t)
	el := NewEventLog(s)
	ctx := context.Background()

	types := []string{schema.EventRunStarted, schema.EventStepStarted, schema.EventStepCompleted, schema.EventRunCompleted}
	for _, typ := range types {
		_, err := el.Append(ctx, streaming.StreamEvent{RunID: "run-1", EventType: typ, Payload: map[string]string{"k": typ}})
		require.NoError(t, err)
	}

	all, err := el.Events(ctx, "run-1", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, schema.EventRunStarted, all[0].Type)

	var payload map[string]string
	require.NoError(t, all[1].DecodePayload(&payload))
	assert.Equal(t, schema.EventStepStarted, payload["k"])

	tail, err := el.Events(ctx, "run-1", 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, int64(3), tail[0].Sequence)
	assert.Equal(t, schema.EventRunCompleted, tail[1].Type)
}

func TestEventLogRecordPump(t *testing.T) {
	s := newTestStore(t)
	el := NewEventLog(s)
	hub := streaming.NewMemoryHub()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- el.Record(ctx, hub, streaming.EventFilter{}, nil) }()

	// Publish until the pump has subscribed and persisted something.
	assert.Eventually(t, func() bool {
		_ = hub.Publish(context.Background(), streaming.StreamEvent{RunID: "run-1", EventType: schema.EventRunStarted})
		evs, err := el.Events(context.Background(), "run-1", 0)
		return err == nil && len(evs) > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not stop after cancel")
	}
}

func TestEventLogFollowDrainsOnCancel(t *testing.T) {
	s := newTestStore(t)
	el := NewEventLog(s)
	hub := streaming.NewMemoryHub()

	ctx, cancel := context.WithCancel(context.Background())
	done, err := el.Follow(ctx, hub, streaming.EventFilter{RunID: "run-2"}, nil)
	require.NoError(t, err)

	for _, typ := range []string{schema.EventRunStarted, schema.EventStepStarted, schema.EventRunCompleted} {
		require.NoError(t, hub.Publish(context.Background(), streaming.StreamEvent{RunID: "run-2", EventType: typ}))
	}
	require.NoError(t, hub.Publish(context.Background(), streaming.StreamEvent{RunID: "other", EventType: schema.EventRunStarted}))
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("follow did not finish after cancel")
	}

	evs, err := el.Events(context.Background(), "run-2", 0)
	require.NoError(t, err)
	require.Len(t, evs, 3)
	assert.Equal(t, schema.EventRunCompleted, evs[2].Type)

	other, err := el.Events(context.Background(), "other", 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestDeleteRecordRemovesEvents(t *testing.T) {
	s := newTestStore(t)
	el := NewEventLog(s)
	ctx := context.Background()

	rec := sampleRecord("count", schema.RunStatusCompleted, time.Now().UTC())
	require.NoError(t, s.SaveRecord(ctx, rec))
	_, err := el.Append(ctx, streaming.StreamEvent{RunID: rec.ID, EventType: schema.EventRunStarted})
	require.NoError(t, err)

	require.NoError(t, s.DeleteRecord(ctx, rec.ID))
	evs, err := el.Events(ctx, rec.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, evs)
}
