package async

import (
	"database/sql"
)

const jobSelectColumns = `id, handler_name, payload, source, status, retry_count,
	error, result, created_at, started_at, completed_at, updated_at`

// jobScanArgs holds the nullable columns of a job row.
type jobScanArgs struct {
	Payload     sql.NullString
	ErrorMsg    sql.NullString
	Result      sql.NullString
	StartedAt   sql.NullTime
	CompletedAt sql.NullTime
}

// scanTargets returns pointers in jobSelectColumns order.
func (a *jobScanArgs) scanTargets(job *Job) []interface{} {
	return []interface{}{
		&job.ID,
		&job.HandlerName,
		&a.Payload,
		&job.Source,
		&job.Status,
		&job.RetryCount,
		&a.ErrorMsg,
		&a.Result,
		&job.CreatedAt,
		&a.StartedAt,
		&a.CompletedAt,
		&job.UpdatedAt,
	}
}

func (a *jobScanArgs) apply(job *Job) {
	if a.Payload.Valid {
		job.Payload = []byte(a.Payload.String)
	}
	if a.ErrorMsg.Valid {
		job.Error = a.ErrorMsg.String
	}
	if a.Result.Valid {
		job.Result = []byte(a.Result.String)
	}
	if a.StartedAt.Valid {
		t := a.StartedAt.Time
		job.StartedAt = &t
	}
	if a.CompletedAt.Valid {
		t := a.CompletedAt.Time
		job.CompletedAt = &t
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job  Job
		args jobScanArgs
	)
	if err := row.Scan(args.scanTargets(&job)...); err != nil {
		return nil, err
	}
	args.apply(&job)
	return &job, nil
}
