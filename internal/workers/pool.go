// Package workers provides a shared goroutine pool for background work:
// scheduler firings and other dispatch that must not block a caller's loop.
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/mkravets/omnibot/internal/logger"
)

// Task is a unit of work submitted to the pool.
type Task struct {
	ID   string
	Kind string
	Run  func(ctx context.Context) error
}

// Pool manages a fixed set of worker goroutines over a buffered task queue.
type Pool struct {
	taskQueue chan Task
	workers   int
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *logger.Logger
	metrics   *Metrics
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewPool creates a pool with the given worker count and queue size.
func NewPool(workers, queueSize int, metrics *Metrics, log *logger.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		taskQueue: make(chan Task, queueSize),
		workers:   workers,
		ctx:       ctx,
		cancel:    cancel,
		logger:    log,
		metrics:   metrics,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting worker pool",
			logger.Field{Key: "workers", Value: p.workers},
			logger.Field{Key: "queue_size", Value: cap(p.taskQueue)})

		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
	})
}

// Submit enqueues a task. It blocks if the queue is full.
func (p *Pool) Submit(task Task) {
	p.metrics.submitted.WithLabelValues(task.Kind).Inc()
	p.taskQueue <- task
}

// Dispatch is a convenience wrapper for callers that only have a closure.
func (p *Pool) Dispatch(id, kind string, fn func(ctx context.Context) error) {
	p.Submit(Task{ID: id, Kind: kind, Run: fn})
}

// Stop cancels workers and waits for in-flight tasks to finish.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		p.wg.Wait()
		p.logger.Info("worker pool stopped")
	})
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.taskQueue:
			p.execute(id, task)
		}
	}
}

func (p *Pool) execute(workerID int, task Task) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			p.metrics.failed.WithLabelValues(task.Kind).Inc()
			p.logger.Error("task panicked", nil,
				logger.Field{Key: "task_id", Value: task.ID},
				logger.Field{Key: "panic", Value: r})
		}
	}()

	err := task.Run(p.ctx)
	elapsed := time.Since(start)

	if err != nil {
		p.metrics.failed.WithLabelValues(task.Kind).Inc()
		p.logger.Error("task failed", err,
			logger.Field{Key: "task_id", Value: task.ID},
			logger.Field{Key: "task_kind", Value: task.Kind},
			logger.Field{Key: "worker", Value: workerID},
			logger.Field{Key: "duration", Value: elapsed.String()})
		return
	}

	p.metrics.completed.WithLabelValues(task.Kind).Inc()
	p.logger.Debug("task completed",
		logger.Field{Key: "task_id", Value: task.ID},
		logger.Field{Key: "task_kind", Value: task.Kind},
		logger.Field{Key: "duration", Value: elapsed.String()})
}
