package streaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rendis/stepwise/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan StreamEvent) StreamEvent {
	t.Helper()
	select {
	case got, ok := <-ch:
		require.True(t, ok, "channel closed")
		return got
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return StreamEvent{}
}

func assertQuiet(t *testing.T, ch <-chan StreamEvent) {
	t.Helper()
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryHub_DeliversWithTimestamp(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{
		RunID:     "r1",
		NodeID:    "greet",
		EventType: "step_completed",
		Payload:   map[string]any{"output": "hi"},
	}))

	got := receive(t, ch)
	assert.Equal(t, "r1", got.RunID)
	assert.Equal(t, "greet", got.NodeID)
	assert.False(t, got.Timestamp.IsZero())
}

func TestMemoryHub_RunBuckets(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	r1, cancel1, err := hub.Subscribe(ctx, EventFilter{RunID: "r1"})
	require.NoError(t, err)
	defer cancel1()
	all, cancelAll, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancelAll()

	require.NoError(t, hub.Publish(ctx, StreamEvent{RunID: "r2", EventType: "run_started"}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{RunID: "r1", EventType: "run_started"}))

	assert.Equal(t, "r1", receive(t, r1).RunID)
	assertQuiet(t, r1)

	assert.Equal(t, "r2", receive(t, all).RunID)
	assert.Equal(t, "r1", receive(t, all).RunID)
}

func TestMemoryHub_EventTypeFilter(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{EventTypes: []string{"run_completed", "run_failed"}})
	require.NoError(t, err)
	defer cancel()

	for _, typ := range []string{"step_started", "run_failed", "step_completed", "run_completed"} {
		require.NoError(t, hub.Publish(ctx, StreamEvent{RunID: "r1", EventType: typ}))
	}

	assert.Equal(t, "run_failed", receive(t, ch).EventType)
	assert.Equal(t, "run_completed", receive(t, ch).EventType)
	assertQuiet(t, ch)
}

func TestMemoryHub_CancelClosesChannel(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{RunID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Stats().Subscribers)

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Stats().Subscribers)
	require.NoError(t, hub.Publish(ctx, StreamEvent{RunID: "r1", EventType: "run_started"}))
}

func TestMemoryHub_DropsWhenFull(t *testing.T) {
	hub := NewMemoryHub(WithBuffer(4))
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < 10; i++ {
		require.NoError(t, hub.Publish(ctx, StreamEvent{RunID: "r1", EventType: "tick"}))
	}
	assert.Len(t, ch, 4)
	assert.Equal(t, uint64(6), hub.Stats().Dropped)
}

func TestMemoryHub_PublishIgnoresCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ch, unsubscribe, err := hub.Subscribe(context.Background(), EventFilter{})
	require.NoError(t, err)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, hub.Publish(ctx, StreamEvent{RunID: "r1", EventType: "run_cancelled"}))
	assert.Equal(t, "run_cancelled", receive(t, ch).EventType)
}

func TestMemoryHub_SubscribeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewMemoryHub().Subscribe(ctx, EventFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryHub_Close(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{RunID: "r1"})
	require.NoError(t, err)

	hub.Close()
	_, ok := <-ch
	assert.False(t, ok)
	cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{RunID: "r1", EventType: "tick"}))
	_, _, err = hub.Subscribe(ctx, EventFilter{})
	assert.Equal(t, schema.ErrCodeConflict, schema.CodeOf(err))
	hub.Close()
}

func TestMemoryHub_Concurrent(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = hub.Publish(ctx, StreamEvent{RunID: "r1", EventType: "tick"})
			}
		}()
		go func() {
			defer wg.Done()
			ch, cancel, err := hub.Subscribe(ctx, EventFilter{RunID: "r1"})
			if err != nil {
				return
			}
			for range 5 {
				select {
				case <-ch:
				case <-time.After(10 * time.Millisecond):
				}
			}
			cancel()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, hub.Stats().Subscribers)
}

func TestDiscardHub(t *testing.T) {
	require.NoError(t, Discard.Publish(context.Background(), StreamEvent{EventType: "tick"}))
	_, cancel, err := Discard.Subscribe(context.Background(), EventFilter{})
	require.NoError(t, err)
	cancel()
}
