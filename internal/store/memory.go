package store

import (
	"context"
	"sort"
	"sync"

	"github.com/rendis/stepwise/pkg/schema"
)

// MemoryStore is an in-process Store. Records are copied on the way in and
// out so callers cannot alias stored state.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*schema.ExecutionRecord
	jobs    map[string]*ScheduledJob
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*schema.ExecutionRecord),
		jobs:    make(map[string]*ScheduledJob),
	}
}

func (m *MemoryStore) Close() error { return nil }

// --- Execution history ---

func (m *MemoryStore) SaveRecord(_ context.Context, rec *schema.ExecutionRecord) error {
	if rec == nil || rec.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "record id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = copyRecord(rec)
	return nil
}

func (m *MemoryStore) GetRecord(_ context.Context, id string) (*schema.ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, storeNotFound("record", id)
	}
	return copyRecord(rec), nil
}

func (m *MemoryStore) ListRecords(_ context.Context, filter RecordFilter) ([]*RecordSummary, error) {
	m.mu.RLock()
	var out []*RecordSummary
	for _, rec := range m.records {
		if filter.WorkflowName != "" && rec.WorkflowName != filter.WorkflowName {
			continue
		}
		if filter.Status != nil && rec.Status != *filter.Status {
			continue
		}
		if filter.Since != nil && rec.StartTime.Before(*filter.Since) {
			continue
		}
		out = append(out, summarize(rec))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) DeleteRecord(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return storeNotFound("record", id)
	}
	delete(m.records, id)
	return nil
}

// --- Scheduled Jobs ---

func (m *MemoryStore) CreateScheduledJob(_ context.Context, job *ScheduledJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[job.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "scheduled job %q already exists", job.ID)
	}
	cp := *job
	cp.CreatedAt = timeOrNow(job.CreatedAt)
	m.jobs[job.ID] = &cp
	return nil
}

func (m *MemoryStore) GetScheduledJob(_ context.Context, id string) (*ScheduledJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, storeNotFound("scheduled job", id)
	}
	cp := *job
	return &cp, nil
}

func (m *MemoryStore) UpdateScheduledJob(_ context.Context, id string, update ScheduledJobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return storeNotFound("scheduled job", id)
	}
	if update.Enabled != nil {
		job.Enabled = *update.Enabled
	}
	if update.LastRunAt != nil {
		t := *update.LastRunAt
		job.LastRunAt = &t
	}
	if update.NextRunAt != nil {
		t := *update.NextRunAt
		job.NextRunAt = &t
	}
	if update.LastRunStatus != "" {
		job.LastRunStatus = update.LastRunStatus
	}
	if update.LastRunID != "" {
		job.LastRunID = update.LastRunID
	}
	return nil
}

func (m *MemoryStore) ListScheduledJobs(_ context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error) {
	m.mu.RLock()
	var out []*ScheduledJob
	for _, job := range m.jobs {
		if filter.Enabled != nil && job.Enabled != *filter.Enabled {
			continue
		}
		cp := *job
		out = append(out, &cp)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) DeleteScheduledJob(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return storeNotFound("scheduled job", id)
	}
	delete(m.jobs, id)
	return nil
}

func copyRecord(rec *schema.ExecutionRecord) *schema.ExecutionRecord {
	cp := *rec
	cp.Steps = make([]schema.ExecutionStep, len(rec.Steps))
	copy(cp.Steps, rec.Steps)
	if rec.EndTime != nil {
		end := *rec.EndTime
		cp.EndTime = &end
	}
	return &cp
}

var _ Store = (*MemoryStore)(nil)
