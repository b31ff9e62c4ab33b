package async

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/topclients/db"
	"github.com/teranos/topclients/errors"
	"github.com/teranos/topclients/logger"
)

const (
	// MaxOrphanedJobsToRecover limits how many jobs left running by a crash
	// are put back in the queue on start.
	MaxOrphanedJobsToRecover = 1000

	// DefaultMaxRetries is how many times a retryable failure is re-queued.
	DefaultMaxRetries = 2

	maxConsecutiveErrors = 5
	maxBackoff           = 30 * time.Second
)

// WorkerPoolConfig contains configuration for the worker pool
type WorkerPoolConfig struct {
	Workers      int           `json:"workers"`
	PollInterval time.Duration `json:"poll_interval"`
	MaxRetries   int           `json:"max_retries"`
}

// DefaultWorkerPoolConfig returns sensible defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:      1,
		PollInterval: 500 * time.Millisecond,
		MaxRetries:   DefaultMaxRetries,
	}
}

// WorkerPool polls the queue and runs jobs through their handlers.
type WorkerPool struct {
	queue     *Queue
	registry  *HandlerRegistry
	cfg       WorkerPoolConfig
	parentCtx context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *zap.SugaredLogger

	mu            sync.Mutex
	jobsProcessed int
	activeWorkers int
}

// NewWorkerPool creates a worker pool with an empty handler registry.
// Callers must register handlers before calling Start.
//
// Cancelling ctx stops the workers; a job interrupted that way goes back
// to the queue instead of failing.
func NewWorkerPool(ctx context.Context, database *sql.DB, cfg WorkerPoolConfig, log *zap.SugaredLogger) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultWorkerPoolConfig().PollInterval
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if log == nil {
		log = logger.Logger
	}

	workerCtx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		queue:     NewQueue(database),
		registry:  NewHandlerRegistry(),
		cfg:       cfg,
		parentCtx: ctx,
		ctx:       workerCtx,
		cancel:    cancel,
		logger:    log.Named("pulse"),
	}
}

// Start recovers jobs orphaned by a previous crash and starts the workers.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	select {
	case <-wp.ctx.Done():
		// restarted after Stop
		wp.ctx, wp.cancel = context.WithCancel(wp.parentCtx)
	default:
	}
	wp.jobsProcessed = 0
	wp.mu.Unlock()

	if err := wp.recoverOrphanedJobs(); err != nil {
		wp.logger.Warnw("Failed to recover orphaned jobs", logger.FieldError, err)
	}

	wp.logger.Infow("Worker pool started",
		"workers", wp.cfg.Workers,
		"poll_interval", wp.cfg.PollInterval,
		"max_retries", wp.cfg.MaxRetries,
		"handlers", wp.registry.Names(),
	)
	for i := 0; i < wp.cfg.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop cancels the workers and waits up to 30 seconds for running jobs to
// hand their state back to the queue.
func (wp *WorkerPool) Stop() {
	wp.cancel()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	timeout := 30 * time.Second
	select {
	case <-done:
		wp.logger.Infow("Worker pool stopped")
	case <-time.After(timeout):
		wp.logger.Warnw("Worker pool stop timed out, workers may still be running", "timeout", timeout)
	}
}

// recoverOrphanedJobs re-queues jobs still marked running, which only
// happens when the process died mid-run. Runs are idempotent so
// re-executing them is safe.
func (wp *WorkerPool) recoverOrphanedJobs() error {
	running := JobStatusRunning
	orphaned, err := wp.queue.ListJobs(wp.ctx, &running, MaxOrphanedJobsToRecover)
	if err != nil {
		return errors.Wrap(err, "failed to list running jobs")
	}
	for _, job := range orphaned {
		job.Status = JobStatusQueued
		job.StartedAt = nil
		job.UpdatedAt = time.Now()
		if err := wp.queue.UpdateJob(wp.ctx, job); err != nil {
			wp.logger.Warnw("Failed to recover orphaned job", logger.FieldJobID, job.ID, logger.FieldError, err)
			continue
		}
		wp.logger.Infow("Recovered orphaned job", logger.FieldJobID, job.ID, logger.FieldHandler, job.HandlerName)
	}
	return nil
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	ticker := time.NewTicker(wp.cfg.PollInterval)
	defer ticker.Stop()

	errorCount := 0
	backoff := time.Second

	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-ticker.C:
		}

		err := wp.processNextJob()
		if err == nil {
			if errorCount > 0 {
				wp.logger.Infow("Worker recovered from errors",
					"worker_id", id,
					"previous_error_count", errorCount)
			}
			errorCount = 0
			backoff = time.Second
			continue
		}

		if wp.ctx.Err() != nil || errors.Is(err, sql.ErrConnDone) || db.IsDatabaseClosed(err) {
			return
		}
		errorCount++
		wp.logger.Errorw("Worker error processing job",
			"worker_id", id,
			logger.FieldError, err,
			"consecutive_errors", errorCount)

		if errorCount >= maxConsecutiveErrors {
			wp.logger.Warnw("Worker backing off due to consecutive errors",
				"worker_id", id,
				"backoff", backoff)
			select {
			case <-wp.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
		}
	}
}

// processNextJob runs at most one job. A nil return with an empty queue is
// the common case.
func (wp *WorkerPool) processNextJob() error {
	if wp.ctx.Err() != nil {
		return nil
	}

	job, err := wp.queue.Dequeue(wp.ctx)
	if err != nil {
		return errors.Wrap(err, "failed to dequeue job")
	}
	if job == nil {
		return nil
	}

	wp.mu.Lock()
	wp.jobsProcessed++
	wp.activeWorkers++
	wp.mu.Unlock()
	defer func() {
		wp.mu.Lock()
		wp.activeWorkers--
		wp.mu.Unlock()
	}()

	ctx := logger.WithJobID(wp.ctx, job.ID)
	log := logger.FromContext(ctx, wp.logger).With(logger.FieldHandler, job.HandlerName)
	log.Infow("Job started", "retry_count", job.RetryCount)
	started := time.Now()

	execErr := wp.registry.Execute(ctx, job)
	// bookkeeping must land even if the pool is being stopped
	bg := context.WithoutCancel(ctx)

	if execErr == nil {
		log.Infow("Job completed", logger.FieldDurationMS, time.Since(started).Milliseconds())
		return wp.queue.CompleteJob(bg, job)
	}

	if wp.ctx.Err() != nil {
		log.Warnw("Job interrupted by shutdown, re-queuing")
		job.Status = JobStatusQueued
		job.StartedAt = nil
		job.UpdatedAt = time.Now()
		if err := wp.queue.UpdateJob(bg, job); err != nil {
			log.Errorw("Failed to re-queue interrupted job", logger.FieldError, err)
		}
		return nil
	}

	ec := ClassifyError(execErr)
	if ec.Retryable && job.RetryCount < wp.cfg.MaxRetries {
		job.Retry(execErr)
		log.Warnw("Job failed, retry scheduled",
			logger.FieldError, execErr,
			"code", ec.Code,
			"retry_count", job.RetryCount,
			"max_retries", wp.cfg.MaxRetries)
		return wp.queue.UpdateJob(bg, job)
	}

	log.Errorw("Job failed",
		logger.FieldError, execErr,
		"code", ec.Code,
		"retryable", ec.Retryable,
		"retry_count", job.RetryCount,
		logger.FieldDurationMS, time.Since(started).Milliseconds())
	return wp.queue.FailJob(bg, job, execErr)
}

// Queue returns the job queue (useful for enqueuing jobs)
func (wp *WorkerPool) Queue() *Queue {
	return wp.queue
}

// Registry returns the handler registry. Register handlers before Start.
func (wp *WorkerPool) Registry() *HandlerRegistry {
	return wp.registry
}

// Workers returns the number of concurrent workers configured for this pool
func (wp *WorkerPool) Workers() int {
	return wp.cfg.Workers
}

// ActiveWorkers returns how many workers are executing a job right now.
func (wp *WorkerPool) ActiveWorkers() int {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.activeWorkers
}
