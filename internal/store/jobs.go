package store

import (
	"time"

	"github.com/battlewithbytes/manage/internal/engine"
)

const jobColumns = `id, type, state, package_id, repository, release_id, error, created_at, updated_at, completed_at`

// CreateJob inserts a new job.
func (s *Store) CreateJob(job *engine.Job) error {
	_, err := s.db.Exec(`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Type, job.State, job.PackageID, job.Repository, job.ReleaseID, job.Error,
		job.CreatedAt.Format(time.RFC3339Nano), job.UpdatedAt.Format(time.RFC3339Nano), completedAt(job),
	)
	return err
}

// UpdateJob updates a job's mutable fields.
func (s *Store) UpdateJob(job *engine.Job) error {
	_, err := s.db.Exec(`UPDATE jobs SET state=?, release_id=?, error=?, updated_at=?, completed_at=? WHERE id=?`,
		job.State, job.ReleaseID, job.Error,
		job.UpdatedAt.Format(time.RFC3339Nano), completedAt(job),
		job.ID,
	)
	return err
}

func completedAt(job *engine.Job) string {
	if job.CompletedAt == nil {
		return ""
	}
	return job.CompletedAt.Format(time.RFC3339Nano)
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(id string) (*engine.Job, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id=?`, id)
	return scanJob(row)
}

// ListJobs returns all jobs, most recent first.
func (s *Store) ListJobs() ([]*engine.Job, error) {
	rows, err := s.db.Query(`SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*engine.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row scanner) (*engine.Job, error) {
	var job engine.Job
	var createdAt, updatedAt, completed string
	err := row.Scan(&job.ID, &job.Type, &job.State, &job.PackageID, &job.Repository, &job.ReleaseID,
		&job.Error, &createdAt, &updatedAt, &completed)
	if err != nil {
		return nil, err
	}
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	job.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if completed != "" {
		t, _ := time.Parse(time.RFC3339Nano, completed)
		job.CompletedAt = &t
	}
	return &job, nil
}

// AppendLog adds a log entry for a job.
func (s *Store) AppendLog(entry *engine.LogEntry) error {
	_, err := s.db.Exec(`INSERT INTO job_logs (job_id, timestamp, level, message) VALUES (?, ?, ?, ?)`,
		entry.JobID, entry.Timestamp.Format(time.RFC3339Nano), entry.Level, entry.Message,
	)
	return err
}

// GetLogs returns all log entries for a job in insertion order.
func (s *Store) GetLogs(jobID string) ([]*engine.LogEntry, error) {
	rows, err := s.db.Query(`SELECT job_id, timestamp, level, message FROM job_logs WHERE job_id=? ORDER BY id ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*engine.LogEntry
	for rows.Next() {
		var entry engine.LogEntry
		var ts string
		if err := rows.Scan(&entry.JobID, &ts, &entry.Level, &entry.Message); err != nil {
			return nil, err
		}
		entry.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		logs = append(logs, &entry)
	}
	return logs, rows.Err()
}

// RecoverOrphanedJobs marks every non-terminal job as failed. A job is left
// non-terminal only when the process died mid-run.
func (s *Store) RecoverOrphanedJobs() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM jobs WHERE state NOT IN ('completed','failed')`)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err == nil {
			ids = append(ids, id)
		}
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, nil
	}

	now := time.Now().Format(time.RFC3339Nano)
	_, err = s.db.Exec(`UPDATE jobs SET state='failed', error='interrupted before completion', completed_at=?, updated_at=? WHERE state NOT IN ('completed','failed')`, now, now)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		s.AppendLog(&engine.LogEntry{
			JobID:     id,
			Timestamp: time.Now(),
			Level:     "warn",
			Message:   "Job interrupted: the process exited while this job was running",
		})
	}
	return ids, nil
}

// ClearTerminalJobs deletes completed and failed jobs with their logs and
// returns the number of jobs deleted.
func (s *Store) ClearTerminalJobs() (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM job_logs WHERE job_id IN (
		SELECT id FROM jobs WHERE state IN ('completed','failed')
	)`); err != nil {
		return 0, err
	}
	res, err := tx.Exec(`DELETE FROM jobs WHERE state IN ('completed','failed')`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}
