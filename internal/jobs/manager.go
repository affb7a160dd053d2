package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aakar745/stallpay-recon/internal/models"
	"github.com/aakar745/stallpay-recon/internal/telemetry"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Job is one long-running detection or sync run. Callers poll its view
// and may cancel it; partial results are visible while it runs and are
// kept whatever way it ends.
type Job struct {
	ID   string
	Kind string

	mu         sync.Mutex
	status     Status
	done       int
	total      int
	results    []models.SyncResult
	report     *models.DetectionReport
	errMsg     string
	startedAt  time.Time
	finishedAt *time.Time
	cancel     context.CancelFunc
}

// Progress is the ProgressFunc to thread into orchestrator calls.
func (j *Job) Progress(done, total int, result models.SyncResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.done = done
	j.total = total
	j.results = append(j.results, result)
}

// View is the poll-safe snapshot served over HTTP.
type View struct {
	ID         string                  `json:"id"`
	Kind       string                  `json:"kind"`
	Status     Status                  `json:"status"`
	Done       int                     `json:"done"`
	Total      int                     `json:"total"`
	Results    []models.SyncResult     `json:"results,omitempty"`
	Report     *models.DetectionReport `json:"report,omitempty"`
	Error      string                  `json:"error,omitempty"`
	StartedAt  time.Time               `json:"startedAt"`
	FinishedAt *time.Time              `json:"finishedAt,omitempty"`
}

func (j *Job) View() View {
	j.mu.Lock()
	defer j.mu.Unlock()
	results := make([]models.SyncResult, len(j.results))
	copy(results, j.results)
	return View{
		ID:         j.ID,
		Kind:       j.Kind,
		Status:     j.status,
		Done:       j.done,
		Total:      j.total,
		Results:    results,
		Report:     j.report,
		Error:      j.errMsg,
		StartedAt:  j.startedAt,
		FinishedAt: j.finishedAt,
	}
}

func (j *Job) finish(report *models.DetectionReport, runErr, ctxErr error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now().UTC()
	j.finishedAt = &now
	j.report = report
	switch {
	case ctxErr != nil:
		j.status = StatusCancelled
	case runErr != nil:
		j.status = StatusFailed
		j.errMsg = runErr.Error()
	default:
		j.status = StatusCompleted
	}
}

// RunFunc does the work. It must honor ctx cancellation and still return
// whatever partial report it assembled.
type RunFunc func(ctx context.Context, job *Job) (*models.DetectionReport, error)

// Finished jobs stay pollable until this many newer ones have finished,
// then the oldest are evicted so the registry cannot grow unbounded.
const defaultRetainFinished = 100

// Manager is the in-memory registry of running and finished jobs.
type Manager struct {
	mu             sync.Mutex
	jobs           map[string]*Job
	retainFinished int
}

func NewManager() *Manager {
	return &Manager{jobs: map[string]*Job{}, retainFinished: defaultRetainFinished}
}

func (m *Manager) Start(kind string, run RunFunc) *Job {
	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		status:    StatusRunning,
		startedAt: time.Now().UTC(),
		cancel:    cancel,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	telemetry.RunningJobs.Inc()
	go func() {
		defer telemetry.RunningJobs.Dec()
		defer cancel()
		report, err := run(ctx, job)
		job.finish(report, err, ctx.Err())
		m.prune()
		if err != nil {
			telemetry.Logger.Error("Job finished with error",
				zap.String("job_id", job.ID),
				zap.String("kind", kind),
				zap.Error(err),
			)
		} else {
			telemetry.Logger.Info("Job finished",
				zap.String("job_id", job.ID),
				zap.String("kind", kind),
				zap.String("status", string(job.View().Status)),
			)
		}
	}()

	return job
}

func (m *Manager) Get(id string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	return job, ok
}

func (m *Manager) prune() {
	m.mu.Lock()
	defer m.mu.Unlock()

	type done struct {
		id string
		at time.Time
	}
	var finished []done
	for id, job := range m.jobs {
		job.mu.Lock()
		if job.status != StatusRunning && job.finishedAt != nil {
			finished = append(finished, done{id: id, at: *job.finishedAt})
		}
		job.mu.Unlock()
	}
	if len(finished) <= m.retainFinished {
		return
	}

	sort.Slice(finished, func(i, j int) bool { return finished[i].at.Before(finished[j].at) })
	for _, d := range finished[:len(finished)-m.retainFinished] {
		delete(m.jobs, d.id)
	}
}

// Cancel stops a running job. Finished jobs report false.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	job, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	job.mu.Lock()
	running := job.status == StatusRunning
	job.mu.Unlock()
	if running {
		job.cancel()
	}
	return running
}
