// Package scheduler maintains a durable set of timed jobs and fires each one
// by publishing a synthesized inbound message to the bus, where it follows
// the same path as any user message.
package scheduler

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Kind represents how a job's firing times are determined.
type Kind string

const (
	// KindOneShot fires once at a fixed time.
	KindOneShot Kind = "oneshot"
	// KindInterval fires repeatedly with a fixed spacing.
	KindInterval Kind = "interval"
	// KindCron fires on a cron expression.
	KindCron Kind = "cron"
)

// Status is a job's lifecycle state. Completed and Cancelled are terminal.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusFiring    Status = "firing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Job is one scheduled unit of work. Payload becomes the content of the
// synthesized inbound message, delivered to the target channel and chat.
type Job struct {
	ID           string     `json:"id"`
	Kind         Kind       `json:"kind"`
	At           *time.Time `json:"at,omitempty"`            // one-shot fire time
	EverySeconds int64      `json:"every_seconds,omitempty"` // interval spacing
	CronExpr     string     `json:"cron,omitempty"`          // cron schedule
	Payload      string     `json:"payload"`
	Channel      string     `json:"channel"`
	ChatID       string     `json:"chat_id"`
	NextRun      time.Time  `json:"next_run"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Repeats reports whether the job fires more than once.
func (j *Job) Repeats() bool {
	return j.Kind == KindInterval || j.Kind == KindCron
}

// Terminal reports whether the job will never fire again.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusCancelled || j.Status == StatusFailed
}

// nextAfter computes the firing time strictly after now. Basing repeating
// jobs on now rather than on the missed due time is what coalesces a backlog
// of missed firings into a single catch-up firing.
func (j *Job) nextAfter(now time.Time, parser cron.Parser) (time.Time, error) {
	switch j.Kind {
	case KindOneShot:
		if j.At == nil {
			return time.Time{}, fmt.Errorf("one-shot job %s has no fire time", j.ID)
		}
		return *j.At, nil
	case KindInterval:
		if j.EverySeconds <= 0 {
			return time.Time{}, fmt.Errorf("interval job %s has non-positive interval", j.ID)
		}
		return now.Add(time.Duration(j.EverySeconds) * time.Second), nil
	case KindCron:
		schedule, err := parser.Parse(j.CronExpr)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid cron expression for job %s: %w", j.ID, err)
		}
		return schedule.Next(now), nil
	default:
		return time.Time{}, fmt.Errorf("unknown job kind: %s", j.Kind)
	}
}

// Validate checks that the job's schedule spec and target are usable.
func (j *Job) Validate(parser cron.Parser) error {
	if j.Channel == "" || j.ChatID == "" {
		return fmt.Errorf("job must name a target channel and chat")
	}
	if j.Payload == "" {
		return fmt.Errorf("job payload cannot be empty")
	}

	switch j.Kind {
	case KindOneShot:
		if j.At == nil {
			return fmt.Errorf("one-shot job requires a fire time")
		}
	case KindInterval:
		if j.EverySeconds <= 0 {
			return fmt.Errorf("interval job requires a positive interval")
		}
	case KindCron:
		if _, err := parser.Parse(j.CronExpr); err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
	default:
		return fmt.Errorf("unknown job kind: %s", j.Kind)
	}
	return nil
}

// GenerateJobID returns a fresh unique job id.
func GenerateJobID() string {
	return uuid.NewString()
}

// NewCronParser returns the parser used for job cron expressions: the
// standard five fields plus descriptors like @daily.
func NewCronParser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}
