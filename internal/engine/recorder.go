package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rendis/stepwise/internal/streaming"
	"github.com/rendis/stepwise/pkg/schema"
)

// Recorder accumulates the execution record of one run. Steps are appended
// when they close and are never modified afterwards. The recorder performs
// no storage I/O; every lifecycle change is published on the hub.
type Recorder struct {
	mu     sync.Mutex
	hub    streaming.EventHub
	record *schema.ExecutionRecord
}

// NewRecorder creates a recorder for a run in status running.
func NewRecorder(runID, workflowName string, hub streaming.EventHub) *Recorder {
	if hub == nil {
		hub = streaming.Discard
	}
	return &Recorder{
		hub: hub,
		record: &schema.ExecutionRecord{
			ID:           runID,
			WorkflowName: workflowName,
			StartTime:    time.Now().UTC(),
			Status:       schema.RunStatusRunning,
			Steps:        []schema.ExecutionStep{},
		},
	}
}

// Isolated returns a recorder for a scoped sub-workflow: it publishes on the
// same hub under the same run id, but its steps stay out of this record.
func (r *Recorder) Isolated(workflowName string) *Recorder {
	return NewRecorder(r.record.ID, workflowName, r.hub)
}

// Start announces the run.
func (r *Recorder) Start(ctx context.Context) {
	r.publish(ctx, streaming.StreamEvent{
		EventType: runEventType(schema.RunStatusRunning),
		Workflow:  r.record.WorkflowName,
		Payload:   map[string]any{"startTime": r.record.StartTime},
	})
}

// Open creates a pending step for node. It is not part of the record until
// Close is called.
func (r *Recorder) Open(ctx context.Context, node *schema.Node, workflow string) *schema.ExecutionStep {
	step := &schema.ExecutionStep{
		NodeID:    node.ID,
		NodeType:  node.Type,
		Workflow:  workflow,
		Status:    schema.StepStatusPending,
		Timestamp: time.Now().UTC(),
	}
	r.publish(ctx, streaming.StreamEvent{
		NodeID:    node.ID,
		Workflow:  workflow,
		EventType: stepEventType(schema.StepStatusPending),
	})
	return step
}

// Close finalizes step with its outcome and appends it to the record.
func (r *Recorder) Close(ctx context.Context, step *schema.ExecutionStep, status schema.StepStatus, input map[string]any, output any, errMsg string) error {
	if !isValidTransition(ValidStepTransitions, step.Status, status) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid step transition: %s -> %s", step.Status, status).WithNode(step.NodeID)
	}
	step.Status = status
	step.Input = input
	step.Output = output
	step.Error = errMsg

	r.mu.Lock()
	r.record.Steps = append(r.record.Steps, *step)
	r.mu.Unlock()

	r.publish(ctx, streaming.StreamEvent{
		NodeID:    step.NodeID,
		Workflow:  step.Workflow,
		EventType: stepEventType(status),
		Payload:   *step,
	})
	return nil
}

// Finish closes the record with a terminal status.
func (r *Recorder) Finish(ctx context.Context, status schema.RunStatus, errMsg string) error {
	r.mu.Lock()
	from := r.record.Status
	if !isValidTransition(ValidRunTransitions, from, status) {
		r.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeInvalidTransition, "invalid run transition: %s -> %s", from, status).
			WithDetails(map[string]any{"run_id": r.record.ID})
	}
	end := time.Now().UTC()
	r.record.Status = status
	r.record.Error = errMsg
	r.record.EndTime = &end
	steps := len(r.record.Steps)
	r.mu.Unlock()

	r.publish(ctx, streaming.StreamEvent{
		Workflow:  r.record.WorkflowName,
		EventType: runEventType(status),
		Payload:   map[string]any{"status": status, "error": errMsg, "steps": steps},
	})
	return nil
}

// Snapshot returns a copy of the record.
func (r *Recorder) Snapshot() *schema.ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.record
	cp.Steps = make([]schema.ExecutionStep, len(r.record.Steps))
	copy(cp.Steps, r.record.Steps)
	if r.record.EndTime != nil {
		end := *r.record.EndTime
		cp.EndTime = &end
	}
	return &cp
}

func (r *Recorder) publish(ctx context.Context, ev streaming.StreamEvent) {
	ev.RunID = r.record.ID
	_ = r.hub.Publish(ctx, ev)
}
