package schema

// Event type constants published on the execution stream.
const (
	EventRunStarted   = "run_started"
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
	EventRunCancelled = "run_cancelled"

	EventStepStarted   = "step_started"
	EventStepCompleted = "step_completed"
	EventStepFailed    = "step_failed"
	EventStepSkipped   = "step_skipped"

	EventConditionEvaluated = "condition_evaluated"
	EventPromptRequested    = "prompt_requested"
	EventPromptResolved     = "prompt_resolved"
	EventSubWorkflowEntered = "subworkflow_entered"
	EventSubWorkflowExited  = "subworkflow_exited"
	EventWalkerTransition   = "walker_transition"
)

// RunStatus is the lifecycle state of an execution record.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusError     RunStatus = "error"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusError || s == RunStatusCancelled
}

// StepStatus is the outcome of one node visit.
type StepStatus string

const (
	StepStatusPending StepStatus = "pending"
	StepStatusSuccess StepStatus = "success"
	StepStatusError   StepStatus = "error"
	StepStatusSkipped StepStatus = "skipped"
)
