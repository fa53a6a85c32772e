package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextAfterBasesRepeatsOnNow(t *testing.T) {
	parser := NewCronParser()
	now := time.Date(2026, 8, 26, 12, 0, 30, 0, time.UTC)

	// An interval job ten intervals overdue lands one interval from now,
	// not one interval from its missed due time.
	job := testJob("interval")
	job.NextRun = now.Add(-10 * time.Minute)
	next, err := job.nextAfter(now, parser)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), next)

	cronJob := Job{ID: "c", Kind: KindCron, CronExpr: "0 * * * *"}
	next, err = cronJob.nextAfter(now, parser)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 26, 13, 0, 0, 0, time.UTC), next)

	at := now.Add(time.Hour)
	oneShot := Job{ID: "o", Kind: KindOneShot, At: &at}
	next, err = oneShot.nextAfter(now, parser)
	require.NoError(t, err)
	assert.Equal(t, at, next)
}

func TestValidate(t *testing.T) {
	parser := NewCronParser()
	at := time.Now().Add(time.Hour)

	tests := []struct {
		name    string
		job     Job
		wantErr bool
	}{
		{
			name: "valid one-shot",
			job:  Job{Kind: KindOneShot, At: &at, Payload: "p", Channel: "telegram", ChatID: "1"},
		},
		{
			name: "valid cron with descriptor",
			job:  Job{Kind: KindCron, CronExpr: "@daily", Payload: "p", Channel: "telegram", ChatID: "1"},
		},
		{
			name:    "missing chat",
			job:     Job{Kind: KindOneShot, At: &at, Payload: "p", Channel: "telegram"},
			wantErr: true,
		},
		{
			name:    "empty payload",
			job:     Job{Kind: KindOneShot, At: &at, Channel: "telegram", ChatID: "1"},
			wantErr: true,
		},
		{
			name:    "one-shot without fire time",
			job:     Job{Kind: KindOneShot, Payload: "p", Channel: "telegram", ChatID: "1"},
			wantErr: true,
		},
		{
			name:    "zero interval",
			job:     Job{Kind: KindInterval, Payload: "p", Channel: "telegram", ChatID: "1"},
			wantErr: true,
		},
		{
			name:    "bad cron expression",
			job:     Job{Kind: KindCron, CronExpr: "61 * * * *", Payload: "p", Channel: "telegram", ChatID: "1"},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			job:     Job{Kind: "hourly", Payload: "p", Channel: "telegram", ChatID: "1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate(parser)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTerminalAndRepeats(t *testing.T) {
	job := testJob("a")
	assert.True(t, job.Repeats())
	assert.False(t, job.Terminal())

	job.Status = StatusCancelled
	assert.True(t, job.Terminal())

	at := time.Now()
	oneShot := Job{Kind: KindOneShot, At: &at, Status: StatusCompleted}
	assert.False(t, oneShot.Repeats())
	assert.True(t, oneShot.Terminal())
}
