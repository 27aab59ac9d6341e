package schema

import "time"

// ExecutionStep is the history entry for one node visit.
type ExecutionStep struct {
	NodeID    string         `json:"nodeId"`
	NodeType  NodeType       `json:"nodeType"`
	Workflow  string         `json:"workflow,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	Output    any            `json:"output,omitempty"`
	Status    StepStatus     `json:"status"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ExecutionRecord is the full trace of one top-level run.
type ExecutionRecord struct {
	ID           string          `json:"id"`
	WorkflowName string          `json:"workflowName"`
	StartTime    time.Time       `json:"startTime"`
	EndTime      *time.Time      `json:"endTime,omitempty"`
	Status       RunStatus       `json:"status"`
	Error        string          `json:"error,omitempty"`
	Steps        []ExecutionStep `json:"steps"`
}

// FailedStep returns the last step with status error, or nil.
func (r *ExecutionRecord) FailedStep() *ExecutionStep {
	for i := len(r.Steps) - 1; i >= 0; i-- {
		if r.Steps[i].Status == StepStatusError {
			return &r.Steps[i]
		}
	}
	return nil
}

// LastStatus returns the status of the most recent visit of nodeID.
func (r *ExecutionRecord) LastStatus(nodeID string) (StepStatus, bool) {
	for i := len(r.Steps) - 1; i >= 0; i-- {
		if r.Steps[i].NodeID == nodeID {
			return r.Steps[i].Status, true
		}
	}
	return "", false
}
