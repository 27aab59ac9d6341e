package streaming

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rendis/stepwise/pkg/schema"
)

const defaultChannelBuffer = 64

// HubOption configures a MemoryHub.
type HubOption func(*MemoryHub)

// WithBuffer sets the channel capacity of each subscription.
func WithBuffer(n int) HubOption {
	return func(h *MemoryHub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

type subscription struct {
	ch      chan StreamEvent
	types   map[string]struct{}
	dropped atomic.Uint64
}

func (s *subscription) wants(eventType string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// MemoryHub fans run events out to in-process subscribers. Subscriptions
// are bucketed by run id, the empty bucket receiving every run.
//
// Publish never blocks: a subscriber whose buffer is full misses the event
// and the miss is counted in Stats.
type MemoryHub struct {
	mu      sync.RWMutex
	byRun   map[string]map[uint64]*subscription
	nextID  uint64
	closed  bool
	buffer  int
	dropped atomic.Uint64
}

func NewMemoryHub(opts ...HubOption) *MemoryHub {
	h := &MemoryHub{
		byRun:  make(map[string]map[uint64]*subscription),
		buffer: defaultChannelBuffer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish delivers event to the subscribers of its run and to the
// catch-all subscribers. A cancelled ctx does not stop delivery, so the
// terminal events of a cancelled run still reach listeners.
func (h *MemoryHub) Publish(_ context.Context, event StreamEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil
	}

	h.deliver(h.byRun[""], event)
	if event.RunID != "" {
		h.deliver(h.byRun[event.RunID], event)
	}
	return nil
}

func (h *MemoryHub) deliver(bucket map[uint64]*subscription, event StreamEvent) {
	for _, sub := range bucket {
		if !sub.wants(event.EventType) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			sub.dropped.Add(1)
			h.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscription. The returned cancel func removes it
// and closes the channel; calling it more than once is harmless.
func (h *MemoryHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	sub := &subscription{ch: make(chan StreamEvent, h.buffer)}
	if len(filter.EventTypes) > 0 {
		sub.types = make(map[string]struct{}, len(filter.EventTypes))
		for _, t := range filter.EventTypes {
			sub.types[t] = struct{}{}
		}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, nil, schema.NewError(schema.ErrCodeConflict, "event hub is closed")
	}
	h.nextID++
	id := h.nextID
	bucket, ok := h.byRun[filter.RunID]
	if !ok {
		bucket = make(map[uint64]*subscription)
		h.byRun[filter.RunID] = bucket
	}
	bucket[id] = sub
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() { h.remove(filter.RunID, id) })
	}
	return sub.ch, cancel, nil
}

func (h *MemoryHub) remove(runID string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	bucket := h.byRun[runID]
	sub, ok := bucket[id]
	if !ok {
		return
	}
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(h.byRun, runID)
	}
	close(sub.ch)
}

// HubStats is a point-in-time view of a MemoryHub.
type HubStats struct {
	Subscribers int
	Dropped     uint64
}

func (h *MemoryHub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, bucket := range h.byRun {
		n += len(bucket)
	}
	return HubStats{Subscribers: n, Dropped: h.dropped.Load()}
}

// Close ends every subscription. Later publishes are ignored and later
// subscribes fail.
func (h *MemoryHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for runID, bucket := range h.byRun {
		for _, sub := range bucket {
			close(sub.ch)
		}
		delete(h.byRun, runID)
	}
}
