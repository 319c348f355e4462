package transfer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferryline/ferryline-api/internal/models"
)

func rawWithMonitor(state string) RawJob {
	return RawJob{
		JobID:    "job-1",
		Triggers: []RawTrigger{{Monitor: &RawMonitor{Status: RawStatus{State: state}}}},
	}
}

func TestNormalize_PriorityOrder(t *testing.T) {
	tests := []struct {
		name string
		raw  RawJob
		want models.TransferStatus
	}{
		{
			name: "monitor status wins over action and job level",
			raw: RawJob{
				Triggers: []RawTrigger{{Monitor: &RawMonitor{Status: RawStatus{State: "IN_PROGRESS"}}}},
				Actions:  []RawAction{{Status: RawStatus{State: "ERROR"}}},
				Status:   "COMPLETED",
			},
			want: models.StatusInProgress,
		},
		{
			name: "action status used when monitor absent",
			raw: RawJob{
				Actions: []RawAction{{Status: RawStatus{State: "PAUSED"}}},
				Status:  "COMPLETED",
			},
			want: models.StatusPaused,
		},
		{
			name: "only action populated",
			raw: RawJob{
				Actions: []RawAction{{Status: RawStatus{State: "ERROR"}}},
			},
			want: models.StatusError,
		},
		{
			name: "job-level status used when monitor and action absent",
			raw:  RawJob{Status: "IN_PROGRESS"},
			want: models.StatusInProgress,
		},
		{
			name: "empty monitor state falls through to action",
			raw: RawJob{
				Triggers: []RawTrigger{{Monitor: &RawMonitor{Status: RawStatus{State: ""}}}},
				Actions:  []RawAction{{Status: RawStatus{State: "OK"}}},
			},
			want: models.StatusReady,
		},
		{
			name: "nothing populated defaults to ready",
			raw:  RawJob{},
			want: models.StatusReady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestNormalize_TokenMapping(t *testing.T) {
	tests := []struct {
		token string
		want  models.TransferStatus
	}{
		{"OK", models.StatusReady},
		{"READY", models.StatusReady},
		{"IN_PROGRESS", models.StatusInProgress},
		{"PAUSED", models.StatusPaused},
		{"ERROR", models.StatusError},
		{"FAILED", models.StatusError},
		{"COMPLETED", models.StatusCompleted},
		{"SUCCESS", models.StatusCompleted},
		{"completed", models.StatusCompleted},
		{"SOMETHING_NEW", models.StatusUnknown},
		{"garbage", models.StatusUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(rawWithMonitor(tt.token)), "token %q", tt.token)
	}
}

func TestProgress_PercentComplete(t *testing.T) {
	detail := RawTransfer{
		Transferred: RawCounter{Count: 30, Bytes: 3000},
		Remaining:   RawCounter{Count: 10, Bytes: 1000},
	}
	p := Progress(detail, time.Now())
	assert.InDelta(t, 75.0, p.PercentComplete, 1e-9)
	assert.Equal(t, int64(40), p.TotalFiles)
	assert.Equal(t, int64(4000), p.TotalBytes)
}

func TestProgress_ZeroCounters(t *testing.T) {
	p := Progress(RawTransfer{}, time.Now())
	assert.Zero(t, p.PercentComplete)
	assert.Zero(t, p.EstimatedRemaining)
}

func TestProgress_EstimatedRemaining(t *testing.T) {
	now := time.Now()
	detail := RawTransfer{
		StartedAt:   now.Add(-100 * time.Second),
		Transferred: RawCounter{Count: 25},
		Remaining:   RawCounter{Count: 75},
	}
	p := Progress(detail, now)
	// 25% done in 100s leaves 300s by linear extrapolation.
	assert.Equal(t, int64(300), p.EstimatedRemaining)
}

func TestJobFromRaw(t *testing.T) {
	now := time.Now()
	raw := RawJob{
		JobID:          "job-7",
		Name:           "nightly backup",
		TriggerType:    "HOT_FOLDER",
		SourceRef:      "src-1",
		DestinationRef: "dst-1",
		Triggers:       []RawTrigger{{Monitor: &RawMonitor{Status: RawStatus{State: "IN_PROGRESS"}}}},
	}
	detail := &RawTransfer{
		Transferred: RawCounter{Count: 1, Bytes: 100},
		Remaining:   RawCounter{Count: 1, Bytes: 100},
	}

	job := JobFromRaw(raw, detail, now)
	require.NotNil(t, job.Progress)
	assert.Equal(t, models.StatusInProgress, job.Status)
	assert.InDelta(t, 50.0, job.Progress.PercentComplete, 1e-9)
	assert.Equal(t, models.TriggerHotFolder, job.TriggerType)

	// Progress is only attached to in-progress jobs.
	raw.Triggers[0].Monitor.Status.State = "COMPLETED"
	job = JobFromRaw(raw, detail, now)
	assert.Nil(t, job.Progress)
}
