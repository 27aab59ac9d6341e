package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stepwise/internal/store"
	"github.com/rendis/stepwise/pkg/schema"
)

type runCall struct {
	path string
	vars map[string]any
}

// fakeRunner records RunFile calls and returns a canned record.
type fakeRunner struct {
	mu     sync.Mutex
	calls  []runCall
	status schema.RunStatus
	err    error
	block  chan struct{}
}

func (r *fakeRunner) RunFile(_ context.Context, path string, vars map[string]any) (*schema.ExecutionRecord, error) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.calls = append(r.calls, runCall{path: path, vars: vars})
	n := len(r.calls)
	r.mu.Unlock()

	status := r.status
	if status == "" {
		status = schema.RunStatusCompleted
	}
	return &schema.ExecutionRecord{ID: "run-" + string(rune('0'+n)), Status: status}, r.err
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestScheduler(t *testing.T, runner Runner) (*Scheduler, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	return New(ms, runner, Config{Tick: time.Hour, Concurrency: 2}, nil), ms
}

func seedJob(t *testing.T, ms *store.MemoryStore, id string, next time.Time, enabled bool) {
	t.Helper()
	require.NoError(t, ms.CreateScheduledJob(context.Background(), &store.ScheduledJob{
		ID:             id,
		Name:           id,
		WorkflowPath:   "flows/" + id + ".yaml",
		CronExpression: "0 * * * *",
		Vars:           map[string]any{"env": "staging"},
		Enabled:        enabled,
		NextRunAt:      &next,
	}))
}

func TestNextRun(t *testing.T) {
	sched, _ := newTestScheduler(t, &fakeRunner{})
	from := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	next, err := sched.NextRun("0 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 10, 13, 0, 0, 0, time.UTC), next)

	next, err = sched.NextRun("*/15 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 10, 12, 15, 0, 0, time.UTC), next)

	next, err = sched.NextRun("@daily", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC), next)

	_, err = sched.NextRun("invalid cron", from)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestAddJob(t *testing.T) {
	sched, ms := newTestScheduler(t, &fakeRunner{})
	fixed := time.Date(2026, 2, 10, 12, 30, 0, 0, time.UTC)
	sched.now = func() time.Time { return fixed }
	ctx := context.Background()

	job, err := sched.AddJob(ctx, "", "flows/nightly.yaml", "0 2 * * *", map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, "flows/nightly.yaml", job.Name)
	require.NotNil(t, job.NextRunAt)
	assert.Equal(t, time.Date(2026, 2, 11, 2, 0, 0, 0, time.UTC), *job.NextRunAt)

	stored, err := ms.GetScheduledJob(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, stored.Enabled)
	assert.Equal(t, "v", stored.Vars["k"])

	_, err = sched.AddJob(ctx, "bad", "x.yaml", "every day", nil)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))

	_, err = sched.AddJob(ctx, "nopath", " ", "@hourly", nil)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))

	require.NoError(t, sched.RemoveJob(ctx, job.ID))
	_, err = ms.GetScheduledJob(ctx, job.ID)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestRunDueRunsDueJobs(t *testing.T) {
	runner := &fakeRunner{}
	sched, ms := newTestScheduler(t, runner)
	ctx := context.Background()

	seedJob(t, ms, "due", time.Now().UTC().Add(-time.Hour), true)
	seedJob(t, ms, "future", time.Now().UTC().Add(time.Hour), true)
	seedJob(t, ms, "disabled", time.Now().UTC().Add(-time.Hour), false)

	assert.Equal(t, 1, sched.RunDue(ctx))
	sched.Wait()

	require.Equal(t, 1, runner.callCount())
	assert.Equal(t, "flows/due.yaml", runner.calls[0].path)
	assert.Equal(t, "staging", runner.calls[0].vars["env"])

	got, err := ms.GetScheduledJob(ctx, "due")
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.After(time.Now().UTC()))
	assert.Equal(t, "completed", got.LastRunStatus)
	assert.Equal(t, "run-1", got.LastRunID)

	m := sched.Metrics()
	assert.Equal(t, int64(1), m.Completed)
}

func TestRunDueRecordsFailure(t *testing.T) {
	runner := &fakeRunner{status: schema.RunStatusError, err: errors.New("boom")}
	sched, ms := newTestScheduler(t, runner)
	ctx := context.Background()

	seedJob(t, ms, "failing", time.Now().UTC().Add(-time.Minute), true)
	sched.RunDue(ctx)
	sched.Wait()

	got, err := ms.GetScheduledJob(ctx, "failing")
	require.NoError(t, err)
	assert.Equal(t, "error", got.LastRunStatus)
	assert.Equal(t, int64(1), sched.Metrics().Failed)
}

func TestRunDueSkipsInflightJob(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	sched, ms := newTestScheduler(t, runner)
	ctx := context.Background()

	seedJob(t, ms, "slow", time.Now().UTC().Add(-time.Minute), true)
	assert.Equal(t, 1, sched.RunDue(ctx))
	assert.Equal(t, 0, sched.RunDue(ctx))

	close(runner.block)
	sched.Wait()
	assert.Equal(t, 1, runner.callCount())
}

func TestBadCronDisablesJob(t *testing.T) {
	runner := &fakeRunner{}
	sched, ms := newTestScheduler(t, runner)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, ms.CreateScheduledJob(ctx, &store.ScheduledJob{
		ID: "broken", WorkflowPath: "x.yaml", CronExpression: "not cron", Enabled: true, NextRunAt: &past,
	}))
	sched.RunDue(ctx)
	sched.Wait()

	got, err := ms.GetScheduledJob(ctx, "broken")
	require.NoError(t, err)
	assert.False(t, got.Enabled)
}

func TestSetEnabled(t *testing.T) {
	sched, ms := newTestScheduler(t, &fakeRunner{})
	ctx := context.Background()

	seedJob(t, ms, "j", time.Now().UTC().Add(-24*time.Hour), true)
	require.NoError(t, sched.SetEnabled(ctx, "j", false))
	got, _ := ms.GetScheduledJob(ctx, "j")
	assert.False(t, got.Enabled)

	require.NoError(t, sched.SetEnabled(ctx, "j", true))
	got, _ = ms.GetScheduledJob(ctx, "j")
	assert.True(t, got.Enabled)
	assert.True(t, got.NextRunAt.After(time.Now().UTC()))
}

func TestStartStop(t *testing.T) {
	runner := &fakeRunner{}
	sched, ms := newTestScheduler(t, runner)
	seedJob(t, ms, "due", time.Now().UTC().Add(-time.Minute), true)

	require.NoError(t, sched.Start(context.Background()))
	require.Error(t, sched.Start(context.Background()))

	assert.Eventually(t, func() bool { return runner.callCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, sched.Stop())
	require.NoError(t, sched.Stop())
}

func TestStartAfterStopFails(t *testing.T) {
	sched, _ := newTestScheduler(t, &fakeRunner{})

	require.NoError(t, sched.Start(context.Background()))
	require.NoError(t, sched.Stop())

	err := sched.Start(context.Background())
	assert.ErrorIs(t, err, ErrStopped)

	unstarted, _ := newTestScheduler(t, &fakeRunner{})
	require.NoError(t, unstarted.Stop())
	assert.ErrorIs(t, unstarted.Start(context.Background()), ErrStopped)
}
