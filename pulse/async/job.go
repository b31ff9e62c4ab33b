// Package async provides the persistent job queue and worker pool that run
// top-N analyses in the background.
package async

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/topclients/errors"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsValidStatus returns true if the status string is a valid JobStatus
func IsValidStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusQueued, JobStatusRunning, JobStatusCompleted,
		JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether a job in this status may still run.
func (s JobStatus) IsActive() bool {
	return s == JobStatusQueued || s == JobStatusRunning
}

// Job is one unit of background work.
//
// The queue is domain-agnostic: HandlerName routes the job to a registered
// JobHandler, which owns the structure of Payload and Result.
type Job struct {
	ID          string          `json:"id"`
	HandlerName string          `json:"handler_name"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Source      string          `json:"source"` // who enqueued it, e.g. "cli" or "schedule"
	Status      JobStatus       `json:"status"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	RetryCount  int             `json:"retry_count,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewJobWithPayload creates a queued job for handlerName. An empty source
// is recorded as "system".
func NewJobWithPayload(handlerName, source string, payload json.RawMessage) (*Job, error) {
	if handlerName == "" {
		return nil, errors.New("handlerName cannot be empty")
	}
	if source == "" {
		source = "system"
	}

	now := time.Now()
	return &Job{
		ID:          uuid.NewString(),
		HandlerName: handlerName,
		Payload:     payload,
		Source:      source,
		Status:      JobStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
}

// Complete, Fail and Cancel are terminal.
func (j *Job) Complete() { j.finish(JobStatusCompleted, "") }

func (j *Job) Fail(err error) { j.finish(JobStatusFailed, err.Error()) }

// Cancel withdraws a job that has not started. reason is kept in Error.
func (j *Job) Cancel(reason string) { j.finish(JobStatusCancelled, reason) }

func (j *Job) finish(status JobStatus, msg string) {
	now := time.Now()
	j.Status = status
	j.Error = msg
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Retry puts a failed attempt back in the queue.
func (j *Job) Retry(err error) {
	j.RetryCount++
	j.Status = JobStatusQueued
	j.Error = err.Error()
	j.StartedAt = nil
	j.UpdatedAt = time.Now()
}
