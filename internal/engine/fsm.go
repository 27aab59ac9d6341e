package engine

import (
	"context"
	"slices"

	"github.com/rendis/stepwise/internal/streaming"
	"github.com/rendis/stepwise/pkg/schema"
)

// WalkerState is the control-flow walker's position in its cycle.
type WalkerState string

const (
	WalkerReady     WalkerState = "ready"
	WalkerExecuting WalkerState = "executing"
	WalkerBranched  WalkerState = "branched"
	WalkerDone      WalkerState = "done"
)

// --- Transition tables ---

// ValidWalkerTransitions defines the allowed walker state transitions.
var ValidWalkerTransitions = map[WalkerState][]WalkerState{
	WalkerReady:     {WalkerExecuting, WalkerDone},
	WalkerExecuting: {WalkerReady, WalkerBranched, WalkerDone},
	WalkerBranched:  {WalkerReady, WalkerDone},
	WalkerDone:      {},
}

// ValidRunTransitions defines the allowed execution record transitions.
var ValidRunTransitions = map[schema.RunStatus][]schema.RunStatus{
	schema.RunStatusRunning:   {schema.RunStatusCompleted, schema.RunStatusError, schema.RunStatusCancelled},
	schema.RunStatusCompleted: {},
	schema.RunStatusError:     {},
	schema.RunStatusCancelled: {},
}

// ValidStepTransitions defines the allowed step transitions. A step is
// closed exactly once.
var ValidStepTransitions = map[schema.StepStatus][]schema.StepStatus{
	schema.StepStatusPending: {schema.StepStatusSuccess, schema.StepStatusError, schema.StepStatusSkipped},
	schema.StepStatusSuccess: {},
	schema.StepStatusError:   {},
	schema.StepStatusSkipped: {},
}

func isValidTransition[S comparable](table map[S][]S, from, to S) bool {
	allowed, ok := table[from]
	return ok && slices.Contains(allowed, to)
}

// --- Walker FSM ---

// walkerFSM tracks one walker (top-level or nested) and publishes every
// transition on the event hub.
type walkerFSM struct {
	hub      streaming.EventHub
	runID    string
	workflow string
	state    WalkerState
}

func newWalkerFSM(hub streaming.EventHub, runID, workflow string) *walkerFSM {
	return &walkerFSM{hub: hub, runID: runID, workflow: workflow, state: WalkerReady}
}

// State returns the current state.
func (f *walkerFSM) State() WalkerState { return f.state }

// Transition moves the walker to state to. nodeID is the node being
// entered or left, if any.
func (f *walkerFSM) Transition(ctx context.Context, to WalkerState, nodeID string) error {
	from := f.state
	if !isValidTransition(ValidWalkerTransitions, from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid walker transition: %s -> %s", from, to).
			WithNode(nodeID).
			WithDetails(map[string]any{"workflow": f.workflow, "from": string(from), "to": string(to)})
	}
	f.state = to
	_ = f.hub.Publish(ctx, streaming.StreamEvent{
		RunID:     f.runID,
		NodeID:    nodeID,
		Workflow:  f.workflow,
		EventType: schema.EventWalkerTransition,
		Payload:   map[string]string{"from": string(from), "to": string(to)},
	})
	return nil
}

func runEventType(to schema.RunStatus) string {
	switch to {
	case schema.RunStatusRunning:
		return schema.EventRunStarted
	case schema.RunStatusCompleted:
		return schema.EventRunCompleted
	case schema.RunStatusError:
		return schema.EventRunFailed
	case schema.RunStatusCancelled:
		return schema.EventRunCancelled
	default:
		return ""
	}
}

func stepEventType(to schema.StepStatus) string {
	switch to {
	case schema.StepStatusPending:
		return schema.EventStepStarted
	case schema.StepStatusSuccess:
		return schema.EventStepCompleted
	case schema.StepStatusError:
		return schema.EventStepFailed
	case schema.StepStatusSkipped:
		return schema.EventStepSkipped
	default:
		return ""
	}
}

// runStatusFor maps the error that ended a walk to the record status.
func runStatusFor(err error) schema.RunStatus {
	if err == nil {
		return schema.RunStatusCompleted
	}
	switch schema.CodeOf(err) {
	case schema.ErrCodeCancelled, schema.ErrCodeUserCancelled:
		return schema.RunStatusCancelled
	}
	return schema.RunStatusError
}
