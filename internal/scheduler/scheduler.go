// Package scheduler runs workflow files on cron schedules. Jobs live in the
// history store so they survive restarts; runs go through a bounded pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/rendis/stepwise/internal/store"
	"github.com/rendis/stepwise/pkg/schema"
)

// DefaultTick is how often the scheduler looks for due jobs.
const DefaultTick = 30 * time.Second

// Runner runs one workflow file to completion and returns its record.
type Runner interface {
	RunFile(ctx context.Context, path string, vars map[string]any) (*schema.ExecutionRecord, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, path string, vars map[string]any) (*schema.ExecutionRecord, error)

func (f RunnerFunc) RunFile(ctx context.Context, path string, vars map[string]any) (*schema.ExecutionRecord, error) {
	return f(ctx, path, vars)
}

// Config tunes a Scheduler.
type Config struct {
	Tick        time.Duration
	Concurrency int
}

// Scheduler polls the store for due scheduled jobs and runs them.
type Scheduler struct {
	store  store.Store
	runner Runner
	parser cron.Parser
	pool   *RunPool
	tick   time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// ErrStopped is returned by Start once the scheduler has been stopped.
var ErrStopped = errors.New("scheduler is stopped")

// New creates a Scheduler. Cron expressions use the standard five fields
// and accept descriptors such as @hourly.
func New(s store.Store, runner Runner, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Scheduler{
		store:    s,
		runner:   runner,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		pool:     NewRunPool(cfg.Concurrency, logger),
		tick:     cfg.Tick,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AddJob validates the cron expression and persists an enabled job whose
// first run is the next matching time.
func (s *Scheduler) AddJob(ctx context.Context, name, path, cronExpr string, vars map[string]any) (*store.ScheduledJob, error) {
	if strings.TrimSpace(path) == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow path is required")
	}
	now := s.now()
	next, err := s.NextRun(cronExpr, now)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = path
	}
	job := &store.ScheduledJob{
		ID:             uuid.New().String(),
		Name:           name,
		WorkflowPath:   path,
		CronExpression: cronExpr,
		Vars:           vars,
		Enabled:        true,
		NextRunAt:      &next,
		CreatedAt:      now,
	}
	if err := s.store.CreateScheduledJob(ctx, job); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "scheduled job added",
		slog.String("job_id", job.ID),
		slog.String("cron", cronExpr),
		slog.Time("next_run_at", next),
	)
	return job, nil
}

// RemoveJob deletes a job.
func (s *Scheduler) RemoveJob(ctx context.Context, id string) error {
	return s.store.DeleteScheduledJob(ctx, id)
}

// SetEnabled pauses or resumes a job. Resuming recomputes the next run so
// a long pause does not trigger an immediate catch-up run.
func (s *Scheduler) SetEnabled(ctx context.Context, id string, enabled bool) error {
	update := store.ScheduledJobUpdate{Enabled: &enabled}
	if enabled {
		job, err := s.store.GetScheduledJob(ctx, id)
		if err != nil {
			return err
		}
		next, err := s.NextRun(job.CronExpression, s.now())
		if err != nil {
			return err
		}
		update.NextRunAt = &next
	}
	return s.store.UpdateScheduledJob(ctx, id, update)
}

// NextRun computes the next run time for a cron expression.
func (s *Scheduler) NextRun(cronExpr string, from time.Time) (time.Time, error) {
	sched, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, schema.NewErrorf(schema.ErrCodeValidation, "parse cron expression %q: %v", cronExpr, err).WithCause(err)
	}
	return sched.Next(from), nil
}

// Start launches the background scheduling loop. It fails after Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Duration("tick", s.tick))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.RunDue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunDue(ctx)
		}
	}
}

// RunDue submits every enabled job whose next run is not in the future.
// A job still running from an earlier tick is skipped. It returns the
// number of jobs submitted.
func (s *Scheduler) RunDue(ctx context.Context) int {
	enabled := true
	jobs, err := s.store.ListScheduledJobs(ctx, store.ScheduledJobFilter{Enabled: &enabled})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list scheduled jobs", slog.String("error", err.Error()))
		return 0
	}

	now := s.now()
	submitted := 0
	for _, job := range jobs {
		if job.NextRunAt != nil && job.NextRunAt.After(now) {
			continue
		}
		job := job
		err := s.pool.Submit(ctx, job.ID, func(ctx context.Context) error {
			return s.runJob(ctx, job, now)
		})
		if errors.Is(err, ErrJobBusy) {
			continue
		}
		if err != nil {
			s.logger.WarnContext(ctx, "scheduled job not submitted",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		submitted++
	}
	return submitted
}

// runJob executes a scheduled job and records its outcome.
func (s *Scheduler) runJob(ctx context.Context, job *store.ScheduledJob, now time.Time) error {
	s.logger.InfoContext(ctx, "running scheduled job",
		slog.String("job_id", job.ID),
		slog.String("workflow_path", job.WorkflowPath),
	)

	rec, runErr := s.runner.RunFile(ctx, job.WorkflowPath, job.Vars)

	update := store.ScheduledJobUpdate{LastRunAt: &now, LastRunStatus: string(schema.RunStatusError)}
	if rec != nil {
		update.LastRunID = rec.ID
		update.LastRunStatus = string(rec.Status)
	}
	next, err := s.NextRun(job.CronExpression, now)
	if err != nil {
		// an unparseable expression would fire on every tick
		disabled := false
		update.Enabled = &disabled
	} else {
		update.NextRunAt = &next
	}

	if uerr := s.store.UpdateScheduledJob(context.WithoutCancel(ctx), job.ID, update); uerr != nil {
		return fmt.Errorf("update job %q: %w", job.ID, uerr)
	}
	if runErr != nil {
		return runErr
	}
	return err
}

// Wait blocks until every submitted run has finished.
func (s *Scheduler) Wait() {
	s.pool.Wait()
}

// Metrics exposes the run pool counters.
func (s *Scheduler) Metrics() PoolMetrics {
	return s.pool.Metrics()
}

// Stop ends the loop and waits for running jobs. A stopped Scheduler
// cannot be started again.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
		s.done = nil
	}
	s.pool.Shutdown()

	s.logger.Info("scheduler stopped")
	return nil
}
