package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Job states. A run moves through them in order and ends in completed or
// failed. uninstalling is skipped on a fresh install.
const (
	StateQueued        = "queued"
	StateResolving     = "resolving"
	StateValidating    = "validating"
	StateGuardChecking = "guard_checking"
	StateUninstalling  = "uninstalling"
	StateInstalling    = "installing"
	StateRecording     = "recording"
	StateCompleted     = "completed"
	StateFailed        = "failed"
)

// Job types
const (
	JobTypeInstall   = "install"
	JobTypeUninstall = "uninstall"
	JobTypeRecord    = "record"
)

// Job is one install, uninstall or record call.
type Job struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	State       string     `json:"state"`
	PackageID   int64      `json:"package_id"`
	Repository  string     `json:"repository"`
	ReleaseID   int64      `json:"release_id,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the job has finished.
func (j *Job) Terminal() bool {
	return j.State == StateCompleted || j.State == StateFailed
}

// LogEntry is a single log line for a job.
type LogEntry struct {
	JobID     string    `json:"job_id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// JobStore persists job history.
type JobStore interface {
	CreateJob(job *Job) error
	UpdateJob(job *Job) error
	GetJob(id string) (*Job, error)
	ListJobs() ([]*Job, error)
	AppendLog(entry *LogEntry) error
	GetLogs(jobID string) ([]*LogEntry, error)
}

// memJobs keeps job history in memory when no database is configured.
type memJobs struct {
	mu   sync.Mutex
	jobs map[string]Job
	logs map[string][]LogEntry
}

// NewMemoryJobStore returns a JobStore that lives only as long as the process.
func NewMemoryJobStore() JobStore {
	return &memJobs{jobs: make(map[string]Job), logs: make(map[string][]LogEntry)}
}

func (m *memJobs) CreateJob(job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	m.jobs[job.ID] = *job
	return nil
}

func (m *memJobs) UpdateJob(job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return fmt.Errorf("job %s not found", job.ID)
	}
	m.jobs[job.ID] = *job
	return nil
}

func (m *memJobs) GetJob(id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s not found", id)
	}
	return &job, nil
}

func (m *memJobs) ListJobs() ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		j := job
		out = append(out, &j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}

func (m *memJobs) AppendLog(entry *LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[entry.JobID] = append(m.logs[entry.JobID], *entry)
	return nil
}

func (m *memJobs) GetLogs(jobID string) ([]*LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.logs[jobID]
	out := make([]*LogEntry, 0, len(entries))
	for i := range entries {
		e := entries[i]
		out = append(out, &e)
	}
	return out, nil
}
