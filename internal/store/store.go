package store

import (
	"context"

	"github.com/rendis/stepwise/pkg/schema"
)

// Store defines the persistence layer contract for execution history and
// scheduled jobs. All implementations must be safe for concurrent use.
// SaveRecord makes every Store usable as the engine's history sink.
type Store interface {
	// Execution history
	SaveRecord(ctx context.Context, rec *schema.ExecutionRecord) error
	GetRecord(ctx context.Context, id string) (*schema.ExecutionRecord, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]*RecordSummary, error)
	DeleteRecord(ctx context.Context, id string) error

	// Scheduled Jobs
	CreateScheduledJob(ctx context.Context, job *ScheduledJob) error
	GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error)
	UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error
	ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error)
	DeleteScheduledJob(ctx context.Context, id string) error

	// Lifecycle
	Close() error
}
