package async

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/teranos/topclients/errors"
)

// SubscriberChannelBufferSize is the buffer size for subscriber channels
const SubscriberChannelBufferSize = 100

// Queue is the job queue. Every state change is persisted before
// subscribers are told about it.
type Queue struct {
	store       *Store
	mu          sync.Mutex
	subscribers []chan *Job
}

// NewQueue creates a new job queue
func NewQueue(db *sql.DB) *Queue {
	return &Queue{store: NewStore(db)}
}

// Store exposes the underlying job store for read-only queries.
func (q *Queue) Store() *Store {
	return q.store
}

// Enqueue adds a new job to the queue
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.CreateJob(ctx, job); err != nil {
		err = errors.Wrap(err, "failed to enqueue job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Handler: %s", job.HandlerName))
		return err
	}

	q.notifySubscribers(job)
	return nil
}

// Dequeue claims the oldest queued job and marks it running. It returns
// nil when the queue is empty.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	queued := JobStatusQueued
	jobs, err := q.store.ListJobs(ctx, &queued, 1)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get queued jobs")
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	job := jobs[0]
	job.Start()
	claimed, err := q.store.claimJob(ctx, job)
	if err != nil {
		err = errors.Wrap(err, "failed to mark job as running")
		return nil, errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
	}
	if !claimed {
		// another process sharing the database took it
		return nil, nil
	}

	q.notifySubscribers(job)
	return job, nil
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	return q.store.GetJob(ctx, id)
}

// UpdateJob persists a job's state
func (q *Queue) UpdateJob(ctx context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.UpdateJob(ctx, job); err != nil {
		err = errors.Wrap(err, "failed to update job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Status: %s", job.Status))
		return err
	}

	q.notifySubscribers(job)
	return nil
}

// CompleteJob marks a job completed, keeping whatever Result the handler set.
func (q *Queue) CompleteJob(ctx context.Context, job *Job) error {
	job.Complete()
	return q.UpdateJob(ctx, job)
}

// FailJob marks a job failed for good.
func (q *Queue) FailJob(ctx context.Context, job *Job, cause error) error {
	job.Fail(cause)
	return q.UpdateJob(ctx, job)
}

// CancelJob withdraws a queued job. Running and finished jobs cannot be
// cancelled; a job a worker claims concurrently keeps running.
func (q *Queue) CancelJob(ctx context.Context, id, reason string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != JobStatusQueued {
		return nil, errors.NewInvalidRequestError("job %s is %s, only queued jobs can be cancelled", id, job.Status)
	}

	if reason == "" {
		reason = "cancelled"
	}
	job.Cancel(reason)
	ok, err := q.store.cancelQueued(ctx, job)
	if err != nil {
		return nil, errors.WithDetail(err, fmt.Sprintf("Job ID: %s", id))
	}
	if !ok {
		return nil, errors.NewInvalidRequestError("job %s started before it could be cancelled", id)
	}

	q.notifySubscribers(job)
	return job, nil
}

// FindActiveJob returns a queued or running job for the handler, or nil.
func (q *Queue) FindActiveJob(ctx context.Context, handlerName string) (*Job, error) {
	return q.store.FindActiveJob(ctx, handlerName)
}

// ListJobs returns up to limit jobs, oldest first, optionally filtered by status.
func (q *Queue) ListJobs(ctx context.Context, status *JobStatus, limit int) ([]*Job, error) {
	return q.store.ListJobs(ctx, status, limit)
}

// GetStats returns job counts by status
func (q *Queue) GetStats(ctx context.Context) (*QueueStats, error) {
	return q.store.GetStats(ctx)
}

// Subscribe returns a channel that receives a copy of every job after each
// state change. Slow subscribers miss updates rather than block the queue.
func (q *Queue) Subscribe() <-chan *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch := make(chan *Job, SubscriberChannelBufferSize)
	q.subscribers = append(q.subscribers, ch)
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (q *Queue) Unsubscribe(ch <-chan *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, sub := range q.subscribers {
		if sub == ch {
			close(sub)
			q.subscribers = append(q.subscribers[:i], q.subscribers[i+1:]...)
			return
		}
	}
}

// notifySubscribers must be called with q.mu held.
func (q *Queue) notifySubscribers(job *Job) {
	for _, ch := range q.subscribers {
		snapshot := *job
		select {
		case ch <- &snapshot:
		default:
		}
	}
}
