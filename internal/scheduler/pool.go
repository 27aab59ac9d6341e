package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrPoolShutdown is returned by Submit once Shutdown has been called.
	ErrPoolShutdown = errors.New("run pool is shut down")
	// ErrJobBusy is returned by Submit while an earlier run of the same
	// job has not finished.
	ErrJobBusy = errors.New("job is already running")
)

// PoolMetrics counts scheduled runs handled by a RunPool.
type PoolMetrics struct {
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
	Skipped   int64 `json:"skipped"`
}

// RunPool runs scheduled jobs with bounded concurrency and at most one
// in-flight run per job id.
type RunPool struct {
	slots  chan struct{}
	logger *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	running  map[string]struct{}
	closed   bool
	stopping chan struct{}
	metrics  PoolMetrics
}

func NewRunPool(size int, logger *slog.Logger) *RunPool {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &RunPool{
		slots:    make(chan struct{}, size),
		logger:   logger,
		running:  make(map[string]struct{}),
		stopping: make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Submit reserves jobID, waits for a free slot and runs fn in its own
// goroutine. fn's error and any panic count as a failure.
func (p *RunPool) Submit(ctx context.Context, jobID string, fn func(ctx context.Context) error) error {
	if err := p.reserve(jobID); err != nil {
		return err
	}

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		p.release(jobID)
		return ctx.Err()
	case <-p.stopping:
		p.release(jobID)
		return ErrPoolShutdown
	}

	p.mu.Lock()
	p.metrics.Active++
	p.mu.Unlock()

	go func() {
		var err error
		panicked := false
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				err = fmt.Errorf("panic: %v", r)
			}
			<-p.slots
			p.finish(jobID, err, panicked)
		}()
		err = fn(ctx)
	}()
	return nil
}

func (p *RunPool) reserve(jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolShutdown
	}
	if _, busy := p.running[jobID]; busy {
		p.metrics.Skipped++
		return ErrJobBusy
	}
	p.running[jobID] = struct{}{}
	return nil
}

// release frees jobID for a run that never got a slot.
func (p *RunPool) release(jobID string) {
	p.mu.Lock()
	delete(p.running, jobID)
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *RunPool) finish(jobID string, err error, panicked bool) {
	if err != nil {
		p.logger.Warn("scheduled run failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.running, jobID)
	p.metrics.Active--
	switch {
	case panicked:
		p.metrics.Panics++
		p.metrics.Failed++
	case err != nil:
		p.metrics.Failed++
	default:
		p.metrics.Completed++
	}
	p.cond.Broadcast()
}

// Busy reports whether a run of jobID is in flight.
func (p *RunPool) Busy(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.running[jobID]
	return ok
}

// Wait blocks until no run is in flight.
func (p *RunPool) Wait() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.running) > 0 {
		p.cond.Wait()
	}
}

// Shutdown refuses new work, unblocks submitters waiting for a slot and
// waits for running jobs.
func (p *RunPool) Shutdown() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.stopping)
	}
	p.mu.Unlock()
	p.Wait()
}

func (p *RunPool) Metrics() PoolMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}
