package async

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/topclients/errors"
)

// Store handles persistence of jobs
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// CreateJob inserts a new job into the database
func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (
			id, handler_name, payload, source, status, retry_count,
			error, result, created_at, started_at, completed_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.HandlerName,
		nullString(string(job.Payload)),
		job.Source,
		job.Status,
		job.RetryCount,
		nullString(job.Error),
		nullString(string(job.Result)),
		job.CreatedAt,
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
		job.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create job")
	}
	return nil
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobSelectColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("job not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}
	return job, nil
}

// UpdateJob writes the job's mutable fields
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?,
		    retry_count = ?,
		    error = ?,
		    result = ?,
		    started_at = ?,
		    completed_at = ?,
		    updated_at = ?
		WHERE id = ?`,
		job.Status,
		job.RetryCount,
		nullString(job.Error),
		nullString(string(job.Result)),
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
		job.UpdatedAt,
		job.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update job")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NewNotFoundError("job not found: %s", job.ID)
	}
	return nil
}

// claimJob flips a queued job to running. It reports false if another
// worker got there first.
func (s *Store) claimJob(ctx context.Context, job *Job) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, started_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		job.Status, nullTime(job.StartedAt), job.UpdatedAt, job.ID, JobStatusQueued,
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to claim job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to claim job")
	}
	return n == 1, nil
}

// cancelQueued records a cancellation unless the job left the queued state.
func (s *Store) cancelQueued(ctx context.Context, job *Job) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		job.Status, job.Error, nullTime(job.CompletedAt), job.UpdatedAt, job.ID, JobStatusQueued,
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to cancel job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to cancel job")
	}
	return n == 1, nil
}

// ListJobs returns jobs oldest first, optionally filtered by status.
func (s *Store) ListJobs(ctx context.Context, status *JobStatus, limit int) ([]*Job, error) {
	query := `SELECT ` + jobSelectColumns + ` FROM jobs`
	var args []interface{}
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at ASC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate jobs")
	}
	return jobs, nil
}

// FindActiveJob returns the oldest queued or running job for a handler,
// or nil if there is none.
func (s *Store) FindActiveJob(ctx context.Context, handlerName string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobSelectColumns+` FROM jobs
		WHERE handler_name = ? AND status IN (?, ?)
		ORDER BY created_at ASC LIMIT 1`,
		handlerName, JobStatusQueued, JobStatusRunning)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find active job")
	}
	return job, nil
}

// QueueStats counts jobs by status
type QueueStats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}

// GetStats returns job counts by status
func (s *Store) GetStats(ctx context.Context) (*QueueStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs")
	}
	defer rows.Close()

	stats := &QueueStats{}
	for rows.Next() {
		var (
			status JobStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan job counts")
		}
		switch status {
		case JobStatusQueued:
			stats.Queued = n
		case JobStatusRunning:
			stats.Running = n
		case JobStatusCompleted:
			stats.Completed = n
		case JobStatusFailed:
			stats.Failed = n
		case JobStatusCancelled:
			stats.Cancelled = n
		}
		stats.Total += n
	}
	return stats, rows.Err()
}
