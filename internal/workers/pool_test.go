package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkravets/omnibot/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func TestPoolRunsSubmittedTasks(t *testing.T) {
	pool := NewPool(3, 16, NewTestMetrics(), testLogger(t))
	pool.Start()
	defer pool.Stop()

	var count atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		pool.Dispatch("task", "test", func(ctx context.Context) error {
			defer wg.Done()
			count.Add(1)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not complete")
	}
	assert.Equal(t, int32(10), count.Load())
}

func TestPoolSurvivesFailuresAndPanics(t *testing.T) {
	pool := NewPool(1, 16, NewTestMetrics(), testLogger(t))
	pool.Start()
	defer pool.Stop()

	pool.Dispatch("bad", "test", func(ctx context.Context) error {
		return errors.New("task error")
	})
	pool.Dispatch("worse", "test", func(ctx context.Context) error {
		panic("task panic")
	})

	done := make(chan struct{})
	pool.Dispatch("after", "test", func(ctx context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool stopped processing after a failing task")
	}
}

func TestPoolStopWaitsForInFlight(t *testing.T) {
	pool := NewPool(1, 16, NewTestMetrics(), testLogger(t))
	pool.Start()

	var finished atomic.Bool
	started := make(chan struct{})
	pool.Dispatch("slow", "test", func(ctx context.Context) error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		return nil
	})

	<-started
	pool.Stop()
	assert.True(t, finished.Load(), "Stop should wait for the running task")
}
