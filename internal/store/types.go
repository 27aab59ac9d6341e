package store

import (
	"time"

	"github.com/rendis/stepwise/pkg/schema"
)

// RecordSummary is the list view of an execution record.
type RecordSummary struct {
	ID           string           `json:"id"`
	WorkflowName string           `json:"workflowName"`
	Status       schema.RunStatus `json:"status"`
	Error        string           `json:"error,omitempty"`
	StartTime    time.Time        `json:"startTime"`
	EndTime      *time.Time       `json:"endTime,omitempty"`
	StepCount    int              `json:"stepCount"`
}

// RunEvent is a persisted stream event.
type RunEvent struct {
	RunID     string    `json:"run_id"`
	Sequence  int64     `json:"sequence"`
	Type      string    `json:"event_type"`
	NodeID    string    `json:"node_id,omitempty"`
	Workflow  string    `json:"workflow,omitempty"`
	Payload   string    `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ScheduledJob is a cron-triggered workflow run.
type ScheduledJob struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	WorkflowPath   string         `json:"workflow_path"`
	CronExpression string         `json:"cron_expression"`
	Vars           map[string]any `json:"vars,omitempty"`
	Enabled        bool           `json:"enabled"`
	LastRunAt      *time.Time     `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time     `json:"next_run_at,omitempty"`
	LastRunStatus  string         `json:"last_run_status,omitempty"`
	LastRunID      string         `json:"last_run_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// --- Filter and update types ---

// RecordFilter specifies criteria for listing execution records.
type RecordFilter struct {
	WorkflowName string            `json:"workflow_name,omitempty"`
	Status       *schema.RunStatus `json:"status,omitempty"`
	Since        *time.Time        `json:"since,omitempty"`
	Limit        int               `json:"limit,omitempty"`
	Offset       int               `json:"offset,omitempty"`
}

// ScheduledJobUpdate specifies mutable fields of a scheduled job.
type ScheduledJobUpdate struct {
	Enabled       *bool      `json:"enabled,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
	LastRunID     string     `json:"last_run_id,omitempty"`
}

// ScheduledJobFilter specifies criteria for listing scheduled jobs.
type ScheduledJobFilter struct {
	Enabled *bool `json:"enabled,omitempty"`
	Limit   int   `json:"limit,omitempty"`
}

func summarize(rec *schema.ExecutionRecord) *RecordSummary {
	return &RecordSummary{
		ID:           rec.ID,
		WorkflowName: rec.WorkflowName,
		Status:       rec.Status,
		Error:        rec.Error,
		StartTime:    rec.StartTime,
		EndTime:      rec.EndTime,
		StepCount:    len(rec.Steps),
	}
}
