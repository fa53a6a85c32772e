package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mkravets/omnibot/internal/bus"
	"github.com/mkravets/omnibot/internal/logger"
)

// Dispatcher runs firing work off the tick loop so persistence I/O never
// delays publishing of other already-due jobs.
type Dispatcher interface {
	Dispatch(id, kind string, fn func(ctx context.Context) error)
}

// heapItem is one pending firing. The heap is lazy: a rescheduled job leaves
// its old item behind, which is recognized as stale when popped.
type heapItem struct {
	at time.Time
	id string
}

type jobHeap []heapItem

func (h jobHeap) Len() int           { return len(h) }
func (h jobHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h jobHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x any)        { *h = append(*h, x.(heapItem)) }
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Scheduler owns the durable job set and fires due jobs onto the bus.
type Scheduler struct {
	logger  *logger.Logger
	bus     *bus.MessageBus
	storage *Storage
	pool    Dispatcher
	parser  cron.Parser
	tick    time.Duration

	mu      sync.Mutex
	jobs    map[string]*Job
	pending jobHeap

	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// New creates a scheduler. tick is the scan granularity for due jobs.
func New(log *logger.Logger, messageBus *bus.MessageBus, storage *Storage, pool Dispatcher, tick time.Duration) *Scheduler {
	return &Scheduler{
		logger:  log,
		bus:     messageBus,
		storage: storage,
		pool:    pool,
		parser:  NewCronParser(),
		tick:    tick,
		jobs:    make(map[string]*Job),
		pending: jobHeap{},
	}
}

// Start loads persisted jobs and begins the tick loop. A job found mid-fire
// from before a crash is rescheduled as if the firing never happened, which
// bounds the restart error to one redundant or one skipped firing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already started")
	}

	loaded, err := s.storage.Load()
	if err != nil {
		return fmt.Errorf("failed to load jobs: %w", err)
	}

	now := time.Now()
	for i := range loaded {
		job := loaded[i]
		if job.Terminal() {
			s.jobs[job.ID] = &job
			continue
		}

		if job.Status == StatusFiring || job.NextRun.IsZero() {
			next, err := job.nextAfter(now, s.parser)
			if err != nil {
				s.logger.Error("failed to reschedule job after restart", err,
					logger.Field{Key: "job_id", Value: job.ID})
				job.Status = StatusFailed
				s.jobs[job.ID] = &job
				continue
			}
			job.NextRun = next
		}
		job.Status = StatusScheduled
		s.jobs[job.ID] = &job
		heap.Push(&s.pending, heapItem{at: job.NextRun, id: job.ID})
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	go s.run()

	s.logger.Info("scheduler started",
		logger.Field{Key: "jobs", Value: len(s.jobs)},
		logger.Field{Key: "tick", Value: s.tick.String()})
	return nil
}

// Stop halts the tick loop.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return fmt.Errorf("scheduler not started")
	}
	s.cancel()
	s.started = false
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			s.fireDue(now)
		}
	}
}

// fireDue pops every job whose fire time has passed and hands each to the
// dispatcher. Only the heap scan holds the lock; publishing and persistence
// happen on pool workers.
func (s *Scheduler) fireDue(now time.Time) {
	s.mu.Lock()
	var due []string
	for s.pending.Len() > 0 && !s.pending[0].at.After(now) {
		item := heap.Pop(&s.pending).(heapItem)
		job, ok := s.jobs[item.id]
		if !ok || job.Terminal() || job.Status == StatusFiring || !job.NextRun.Equal(item.at) {
			continue // stale heap entry
		}
		job.Status = StatusFiring
		due = append(due, job.ID)
	}
	s.mu.Unlock()

	for _, id := range due {
		jobID := id
		s.pool.Dispatch(jobID, "scheduler_fire", func(ctx context.Context) error {
			return s.fire(ctx, jobID)
		})
	}
}

// fire publishes the job's synthesized inbound message, then records the
// transition. Publish comes first: a slow disk must not delay delivery.
func (s *Scheduler) fire(ctx context.Context, jobID string) error {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("job %s disappeared before firing", jobID)
	}
	msg := bus.NewInboundMessage(job.Channel, job.ChatID, "scheduler", job.Payload)
	msg.Metadata = map[string]string{"job_id": job.ID}
	s.mu.Unlock()

	if err := s.bus.PublishInbound(msg); err != nil {
		s.logger.Warn("failed to publish scheduled message",
			logger.Field{Key: "job_id", Value: jobID},
			logger.Field{Key: "error", Value: err.Error()})
	}

	now := time.Now()

	s.mu.Lock()
	job.LastRun = &now
	if job.Repeats() {
		next, err := job.nextAfter(now, s.parser)
		if err != nil {
			// The Failed state must survive a restart, or Start would put
			// the job straight back on the heap.
			job.Status = StatusFailed
			failed := *job
			s.mu.Unlock()
			if perr := s.storage.Upsert(failed); perr != nil {
				s.logger.Error("failed to persist job failure", perr,
					logger.Field{Key: "job_id", Value: jobID})
			}
			return err
		}
		job.NextRun = next
		job.Status = StatusScheduled
		heap.Push(&s.pending, heapItem{at: next, id: job.ID})
	} else {
		job.Status = StatusCompleted
	}
	snapshot := *job
	s.mu.Unlock()

	if err := s.storage.Upsert(snapshot); err != nil {
		// Persistence failure poisons only this job; the tick loop and the
		// rest of the job set keep going.
		s.mu.Lock()
		job.Status = StatusFailed
		s.mu.Unlock()
		s.logger.Error("failed to persist job transition", err,
			logger.Field{Key: "job_id", Value: jobID})
		return err
	}

	s.logger.Debug("job fired",
		logger.Field{Key: "job_id", Value: jobID},
		logger.Field{Key: "next_run", Value: snapshot.NextRun.Format(time.RFC3339)})
	return nil
}

// AddJob validates, persists, and schedules a new job. Returns the job id.
func (s *Scheduler) AddJob(job Job) (string, error) {
	if job.ID == "" {
		job.ID = GenerateJobID()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if err := job.Validate(s.parser); err != nil {
		return "", err
	}

	now := time.Now()
	next, err := job.nextAfter(now, s.parser)
	if err != nil {
		return "", err
	}
	job.NextRun = next
	job.Status = StatusScheduled

	if err := s.storage.Upsert(job); err != nil {
		return "", fmt.Errorf("failed to persist job: %w", err)
	}

	s.mu.Lock()
	s.jobs[job.ID] = &job
	heap.Push(&s.pending, heapItem{at: job.NextRun, id: job.ID})
	s.mu.Unlock()

	s.logger.Info("job added",
		logger.Field{Key: "job_id", Value: job.ID},
		logger.Field{Key: "kind", Value: string(job.Kind)},
		logger.Field{Key: "next_run", Value: job.NextRun.Format(time.RFC3339)})
	return job.ID, nil
}

// RemoveJob cancels a job. The record is kept with status cancelled.
func (s *Scheduler) RemoveJob(jobID string) error {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("job not found: %s", jobID)
	}
	job.Status = StatusCancelled
	snapshot := *job
	s.mu.Unlock()

	if err := s.storage.Upsert(snapshot); err != nil {
		return fmt.Errorf("failed to persist cancellation: %w", err)
	}

	s.logger.Info("job cancelled", logger.Field{Key: "job_id", Value: jobID})
	return nil
}

// ListJobs returns all known jobs ordered by creation time.
func (s *Scheduler) ListJobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// GetJob returns the job with the given id.
func (s *Scheduler) GetJob(jobID string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return Job{}, fmt.Errorf("job not found: %s", jobID)
	}
	return *job, nil
}

// IsStarted reports whether the tick loop is running.
func (s *Scheduler) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
