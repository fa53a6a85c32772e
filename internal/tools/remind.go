package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mkravets/omnibot/internal/scheduler"
)

// JobManager is the slice of the scheduler the remind tool needs.
type JobManager interface {
	AddJob(job scheduler.Job) (string, error)
	ListJobs() []scheduler.Job
	RemoveJob(jobID string) error
}

// RemindTool lets the model schedule, list, and cancel timed messages for
// the conversation it is running in. The target channel and chat come from
// the executor, never from model arguments, so a reminder cannot be pointed
// at another conversation.
type RemindTool struct {
	jobs    JobManager
	channel string
	chatID  string
}

// RemindArgs are the tool's input parameters.
type RemindArgs struct {
	Action       string `json:"action"`
	Message      string `json:"message,omitempty"`
	At           string `json:"at,omitempty"`            // RFC3339, one-shot
	EverySeconds int64  `json:"every_seconds,omitempty"` // repeating interval
	Cron         string `json:"cron,omitempty"`          // cron expression
	JobID        string `json:"job_id,omitempty"`
}

// NewRemindTool creates a remind tool bound to one conversation.
func NewRemindTool(jobs JobManager, channel, chatID string) *RemindTool {
	return &RemindTool{jobs: jobs, channel: channel, chatID: chatID}
}

// Name returns the tool name.
func (t *RemindTool) Name() string {
	return "remind"
}

// Description returns what the tool does.
func (t *RemindTool) Description() string {
	return "Schedule a reminder message for this conversation, list existing reminders, or cancel one"
}

// Parameters returns the JSON Schema for the tool's parameters.
func (t *RemindTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"add", "list", "remove"},
				"description": "Operation to perform",
			},
			"message": map[string]any{
				"type":        "string",
				"description": "Reminder text (add action)",
			},
			"at": map[string]any{
				"type":        "string",
				"description": "One-shot fire time, RFC3339 (add action)",
			},
			"every_seconds": map[string]any{
				"type":        "integer",
				"description": "Repeat interval in seconds (add action)",
			},
			"cron": map[string]any{
				"type":        "string",
				"description": "Cron expression, five fields (add action)",
			},
			"job_id": map[string]any{
				"type":        "string",
				"description": "Reminder id to cancel (remove action)",
			},
		},
		"required": []string{"action"},
	}
}

// Execute implements Tool.
func (t *RemindTool) Execute(ctx context.Context, args string) (string, error) {
	var params RemindArgs
	if err := json.Unmarshal([]byte(args), &params); err != nil {
		return "", NewValidationError(fmt.Errorf("invalid arguments: %w", err))
	}

	switch params.Action {
	case "add":
		return t.add(params)
	case "list":
		return t.list()
	case "remove":
		return t.remove(params.JobID)
	default:
		return "", NewValidationError(fmt.Errorf("unknown action: %s", params.Action))
	}
}

func (t *RemindTool) add(params RemindArgs) (string, error) {
	if params.Message == "" {
		return "", NewValidationError(fmt.Errorf("message cannot be empty"))
	}

	job := scheduler.Job{
		Payload: params.Message,
		Channel: t.channel,
		ChatID:  t.chatID,
	}

	switch {
	case params.At != "":
		at, err := time.Parse(time.RFC3339, params.At)
		if err != nil {
			return "", NewValidationError(fmt.Errorf("invalid 'at' time: %w", err))
		}
		job.Kind = scheduler.KindOneShot
		job.At = &at
	case params.EverySeconds > 0:
		job.Kind = scheduler.KindInterval
		job.EverySeconds = params.EverySeconds
	case params.Cron != "":
		job.Kind = scheduler.KindCron
		job.CronExpr = params.Cron
	default:
		return "", NewValidationError(fmt.Errorf("one of at, every_seconds, or cron is required"))
	}

	id, err := t.jobs.AddJob(job)
	if err != nil {
		return "", NewExecutionError(err)
	}
	return fmt.Sprintf("reminder scheduled with id %s", id), nil
}

func (t *RemindTool) list() (string, error) {
	var b strings.Builder
	count := 0
	for _, job := range t.jobs.ListJobs() {
		if job.Channel != t.channel || job.ChatID != t.chatID || job.Terminal() {
			continue
		}
		count++
		fmt.Fprintf(&b, "%s [%s] next=%s: %s\n",
			job.ID, job.Kind, job.NextRun.Format(time.RFC3339), job.Payload)
	}
	if count == 0 {
		return "no reminders scheduled", nil
	}
	return strings.TrimSpace(b.String()), nil
}

func (t *RemindTool) remove(jobID string) (string, error) {
	if jobID == "" {
		return "", NewValidationError(fmt.Errorf("job_id is required"))
	}
	if err := t.jobs.RemoveJob(jobID); err != nil {
		return "", NewExecutionError(err)
	}
	return fmt.Sprintf("reminder %s cancelled", jobID), nil
}
