package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aakar745/stallpay-recon/internal/models"
	"github.com/aakar745/stallpay-recon/internal/telemetry"
)

func init() {
	telemetry.Logger = zap.NewNop()
}

func waitForStatus(t *testing.T, m *Manager, id string, want Status) View {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		job, ok := m.Get(id)
		require.True(t, ok)
		view := job.View()
		if view.Status == want {
			return view
		}
		select {
		case <-deadline:
			t.Fatalf("job %s never reached %s, stuck at %s", id, want, view.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestManager_CompletedJobKeepsReport(t *testing.T) {
	m := NewManager()
	job := m.Start("receipt_gaps", func(ctx context.Context, j *Job) (*models.DetectionReport, error) {
		j.Progress(1, 1, models.SyncResult{ReceiptNumber: "SC2025000189", Decision: models.DecisionCreate})
		return &models.DetectionReport{TotalChecked: 1, MissingCount: 1}, nil
	})

	view := waitForStatus(t, m, job.ID, StatusCompleted)
	require.NotNil(t, view.Report)
	assert.Equal(t, 1, view.Report.MissingCount)
	assert.Equal(t, 1, view.Done)
	require.Len(t, view.Results, 1)
}

func TestManager_CancelKeepsPartialResults(t *testing.T) {
	m := NewManager()
	started := make(chan struct{})
	job := m.Start("bulk_sync", func(ctx context.Context, j *Job) (*models.DetectionReport, error) {
		j.Progress(1, 3, models.SyncResult{ReceiptNumber: "SC2025000101", Decision: models.DecisionNoOp})
		close(started)
		<-ctx.Done()
		// partial report still comes back on cancellation
		return &models.DetectionReport{TotalChecked: 1, RemainingToCheck: 2}, nil
	})

	<-started
	assert.True(t, m.Cancel(job.ID))

	view := waitForStatus(t, m, job.ID, StatusCancelled)
	require.Len(t, view.Results, 1, "partial results survive cancellation")
	require.NotNil(t, view.Report)
	assert.Equal(t, 2, view.Report.RemainingToCheck)
}

func TestManager_FailedJobSurfacesError(t *testing.T) {
	m := NewManager()
	job := m.Start("comprehensive", func(ctx context.Context, j *Job) (*models.DetectionReport, error) {
		return nil, context.DeadlineExceeded
	})

	view := waitForStatus(t, m, job.ID, StatusFailed)
	assert.NotEmpty(t, view.Error)
}

func TestManager_UnknownJob(t *testing.T) {
	m := NewManager()
	_, ok := m.Get("nope")
	assert.False(t, ok)
	assert.False(t, m.Cancel("nope"))
}

func TestManager_EvictsOldestFinishedJobs(t *testing.T) {
	m := NewManager()
	m.retainFinished = 1

	run := func(ctx context.Context, j *Job) (*models.DetectionReport, error) {
		return &models.DetectionReport{}, nil
	}
	first := m.Start("daily", run)
	waitForStatus(t, m, first.ID, StatusCompleted)
	second := m.Start("daily", run)
	waitForStatus(t, m, second.ID, StatusCompleted)

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := m.Get(first.ID); !ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("oldest finished job was never evicted")
		case <-time.After(5 * time.Millisecond):
		}
	}
	_, ok := m.Get(second.ID)
	assert.True(t, ok, "the most recent finished job stays pollable")
}

func TestManager_CancelFinishedJobIsFalse(t *testing.T) {
	m := NewManager()
	job := m.Start("daily", func(ctx context.Context, j *Job) (*models.DetectionReport, error) {
		return &models.DetectionReport{}, nil
	})
	waitForStatus(t, m, job.ID, StatusCompleted)
	assert.False(t, m.Cancel(job.ID))
}
