// Package export runs archive exports against the backend as async jobs,
// so the dashboard can trigger a long-running export and poll its state.
package export

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/grid-monitor/dashboard/internal/models"
)

// Status represents the export job lifecycle.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Kind selects which dataset the backend archives.
type Kind string

const (
	KindVoltage Kind = "voltage"
	KindFaults  Kind = "faults"
)

// Job represents an async export proxied to the backend.
type Job struct {
	ID          string               `json:"id"`
	Kind        Kind                 `json:"kind"`
	Hours       int                  `json:"hours"`
	Status      Status               `json:"status"`
	Result      *models.ExportResult `json:"result,omitempty"`
	Error       string               `json:"error,omitempty"`
	CreatedAt   time.Time            `json:"createdAt"`
	CompletedAt *time.Time           `json:"completedAt,omitempty"`
}

// Backend is the slice of the REST transport the manager needs.
type Backend interface {
	ExportVoltage(ctx context.Context, token string, hours int) (*models.ExportResult, error)
	ExportFaults(ctx context.Context, token string, hours int) (*models.ExportResult, error)
}

// Manager tracks export jobs.
type Manager struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	backend Backend
	timeout time.Duration
	logger  *zap.Logger
}

// NewManager creates an export-job manager. timeout bounds each upstream
// export call.
func NewManager(backend Backend, timeout time.Duration, logger *zap.Logger) *Manager {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Manager{
		jobs:    make(map[string]*Job),
		backend: backend,
		timeout: timeout,
		logger:  logger,
	}
}

// StartJob begins an async export with the given session token and
// returns the pending job immediately.
func (m *Manager) StartJob(token string, kind Kind, hours int) *Job {
	job := &Job{
		ID:        uuid.New().String(),
		Kind:      kind,
		Hours:     hours,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	go m.run(job.ID, token, kind, hours)

	return m.copyJob(job.ID)
}

func (m *Manager) run(id, token string, kind Kind, hours int) {
	m.setStatus(id, StatusRunning, nil, "")

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var result *models.ExportResult
	var err error
	switch kind {
	case KindFaults:
		result, err = m.backend.ExportFaults(ctx, token, hours)
	default:
		result, err = m.backend.ExportVoltage(ctx, token, hours)
	}

	if err != nil {
		m.logger.Error("export failed",
			zap.String("job_id", id),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		m.setStatus(id, StatusError, nil, err.Error())
		return
	}

	m.logger.Info("export complete",
		zap.String("job_id", id),
		zap.String("kind", string(kind)),
		zap.String("key", result.Key),
	)
	m.setStatus(id, StatusComplete, result, "")
}

func (m *Manager) setStatus(id string, status Status, result *models.ExportResult, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return
	}
	job.Status = status
	job.Result = result
	job.Error = errMsg
	if status == StatusComplete || status == StatusError {
		now := time.Now()
		job.CompletedAt = &now
	}
}

// GetJob returns a snapshot of a job by ID.
func (m *Manager) GetJob(id string) (*Job, bool) {
	job := m.copyJob(id)
	return job, job != nil
}

// ListJobs returns snapshots of all jobs, newest first.
func (m *Manager) ListJobs() []*Job {
	m.mu.RLock()
	out := make([]*Job, 0, len(m.jobs))
	for id := range m.jobs {
		out = append(out, m.snapshotLocked(id))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *Manager) copyJob(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked(id)
}

// snapshotLocked copies a job; caller holds at least a read lock.
func (m *Manager) snapshotLocked(id string) *Job {
	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	copied := *job
	return &copied
}
