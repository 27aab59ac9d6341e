package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPool_BoundsConcurrency(t *testing.T) {
	pool := NewRunPool(3, nil)
	defer pool.Shutdown()

	var current, peak atomic.Int64
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(context.Background(), fmt.Sprintf("job-%d", i), func(context.Context) error {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			current.Add(-1)
			return nil
		}))
	}
	pool.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.Equal(t, int64(10), pool.Metrics().Completed)
	assert.Equal(t, int64(0), pool.Metrics().Active)
}

func TestRunPool_OneRunPerJob(t *testing.T) {
	pool := NewRunPool(4, nil)
	defer pool.Shutdown()

	release := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), "nightly", func(context.Context) error {
		<-release
		return nil
	}))
	assert.True(t, pool.Busy("nightly"))

	err := pool.Submit(context.Background(), "nightly", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrJobBusy)
	require.NoError(t, pool.Submit(context.Background(), "hourly", func(context.Context) error { return nil }))

	close(release)
	pool.Wait()
	assert.False(t, pool.Busy("nightly"))

	m := pool.Metrics()
	assert.Equal(t, int64(1), m.Skipped)
	assert.Equal(t, int64(2), m.Completed)
}

func TestRunPool_FailuresAndPanics(t *testing.T) {
	pool := NewRunPool(2, nil)
	defer pool.Shutdown()

	require.NoError(t, pool.Submit(context.Background(), "err", func(context.Context) error {
		return errors.New("boom")
	}))
	require.NoError(t, pool.Submit(context.Background(), "panic", func(context.Context) error {
		panic("kaboom")
	}))
	pool.Wait()

	m := pool.Metrics()
	assert.Equal(t, int64(2), m.Failed)
	assert.Equal(t, int64(1), m.Panics)
	assert.Equal(t, int64(0), m.Active)
}

func TestRunPool_WaitingSubmitHonoursContext(t *testing.T) {
	pool := NewRunPool(1, nil)
	defer pool.Shutdown()

	release := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), "hold", func(context.Context) error {
		<-release
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Submit(ctx, "waiting", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, pool.Busy("waiting"))

	close(release)
	pool.Wait()
}

func TestRunPool_ShutdownUnblocksWaitingSubmit(t *testing.T) {
	pool := NewRunPool(1, nil)
	release := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), "hold", func(context.Context) error {
		<-release
		return nil
	}))

	errc := make(chan error, 1)
	go func() {
		errc <- pool.Submit(context.Background(), "queued", func(context.Context) error { return nil })
	}()
	require.Eventually(t, func() bool { return pool.Busy("queued") }, time.Second, 5*time.Millisecond)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	pool.Shutdown()
	assert.ErrorIs(t, <-errc, ErrPoolShutdown)

	err := pool.Submit(context.Background(), "late", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolShutdown)
	pool.Shutdown()
}
