package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkravets/omnibot/internal/scheduler"
)

// fakeJobManager records scheduler calls without a running scheduler.
type fakeJobManager struct {
	added   []scheduler.Job
	jobs    []scheduler.Job
	removed []string
	addErr  error
}

func (f *fakeJobManager) AddJob(job scheduler.Job) (string, error) {
	if f.addErr != nil {
		return "", f.addErr
	}
	f.added = append(f.added, job)
	return "job-1", nil
}

func (f *fakeJobManager) ListJobs() []scheduler.Job { return f.jobs }

func (f *fakeJobManager) RemoveJob(jobID string) error {
	f.removed = append(f.removed, jobID)
	return nil
}

func TestRemindAddOneShot(t *testing.T) {
	jobs := &fakeJobManager{}
	tool := NewRemindTool(jobs, "telegram", "42")

	out, err := tool.Execute(context.Background(),
		`{"action":"add","message":"stand up","at":"2026-08-27T09:00:00Z"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "job-1")

	require.Len(t, jobs.added, 1)
	job := jobs.added[0]
	assert.Equal(t, scheduler.KindOneShot, job.Kind)
	assert.Equal(t, "stand up", job.Payload)
	assert.Equal(t, "telegram", job.Channel)
	assert.Equal(t, "42", job.ChatID)
	require.NotNil(t, job.At)
	assert.Equal(t, time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC), job.At.UTC())
}

func TestRemindAddIntervalAndCron(t *testing.T) {
	jobs := &fakeJobManager{}
	tool := NewRemindTool(jobs, "telegram", "42")

	_, err := tool.Execute(context.Background(),
		`{"action":"add","message":"drink water","every_seconds":3600}`)
	require.NoError(t, err)

	_, err = tool.Execute(context.Background(),
		`{"action":"add","message":"weekly report","cron":"0 9 * * 1"}`)
	require.NoError(t, err)

	require.Len(t, jobs.added, 2)
	assert.Equal(t, scheduler.KindInterval, jobs.added[0].Kind)
	assert.Equal(t, int64(3600), jobs.added[0].EverySeconds)
	assert.Equal(t, scheduler.KindCron, jobs.added[1].Kind)
	assert.Equal(t, "0 9 * * 1", jobs.added[1].CronExpr)
}

func TestRemindAddValidation(t *testing.T) {
	tool := NewRemindTool(&fakeJobManager{}, "telegram", "42")
	ctx := context.Background()

	_, err := tool.Execute(ctx, `{"action":"add","at":"2026-08-27T09:00:00Z"}`)
	assert.Error(t, err, "missing message")

	_, err = tool.Execute(ctx, `{"action":"add","message":"m"}`)
	assert.Error(t, err, "missing schedule")

	_, err = tool.Execute(ctx, `{"action":"add","message":"m","at":"tomorrow"}`)
	assert.Error(t, err, "bad time format")
}

func TestRemindAddSchedulerFailure(t *testing.T) {
	jobs := &fakeJobManager{addErr: errors.New("disk full")}
	tool := NewRemindTool(jobs, "telegram", "42")

	_, err := tool.Execute(context.Background(),
		`{"action":"add","message":"m","every_seconds":60}`)
	require.Error(t, err)
	te, ok := AsToolError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorExecutionFailed, te.Kind)
}

func TestRemindListScopedToConversation(t *testing.T) {
	jobs := &fakeJobManager{jobs: []scheduler.Job{
		{ID: "mine", Channel: "telegram", ChatID: "42", Kind: scheduler.KindInterval,
			Payload: "water", Status: scheduler.StatusScheduled},
		{ID: "other-chat", Channel: "telegram", ChatID: "7", Kind: scheduler.KindInterval,
			Payload: "secret", Status: scheduler.StatusScheduled},
		{ID: "done", Channel: "telegram", ChatID: "42", Kind: scheduler.KindOneShot,
			Payload: "old", Status: scheduler.StatusCompleted},
	}}
	tool := NewRemindTool(jobs, "telegram", "42")

	out, err := tool.Execute(context.Background(), `{"action":"list"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "mine")
	assert.NotContains(t, out, "other-chat")
	assert.NotContains(t, out, "done")
}

func TestRemindListEmpty(t *testing.T) {
	tool := NewRemindTool(&fakeJobManager{}, "telegram", "42")

	out, err := tool.Execute(context.Background(), `{"action":"list"}`)
	require.NoError(t, err)
	assert.Equal(t, "no reminders scheduled", out)
}

func TestRemindRemove(t *testing.T) {
	jobs := &fakeJobManager{}
	tool := NewRemindTool(jobs, "telegram", "42")

	out, err := tool.Execute(context.Background(), `{"action":"remove","job_id":"job-9"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "job-9")
	assert.Equal(t, []string{"job-9"}, jobs.removed)

	_, err = tool.Execute(context.Background(), `{"action":"remove"}`)
	assert.Error(t, err)
}
