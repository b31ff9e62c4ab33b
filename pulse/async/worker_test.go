package async

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/topclients/errors"
	testdb "github.com/teranos/topclients/internal/testing"
)

func newTestPool(t *testing.T, maxRetries int) *WorkerPool {
	t.Helper()
	cfg := WorkerPoolConfig{Workers: 2, PollInterval: 10 * time.Millisecond, MaxRetries: maxRetries}
	pool := NewWorkerPool(context.Background(), testdb.CreateMigratedTestDB(t), cfg, zaptest.NewLogger(t).Sugar())
	t.Cleanup(pool.Stop)
	return pool
}

func enqueue(t *testing.T, pool *WorkerPool, handler string) *Job {
	t.Helper()
	job := newJob(t, handler)
	require.NoError(t, pool.Queue().Enqueue(context.Background(), job))
	return job
}

func waitForStatus(t *testing.T, pool *WorkerPool, id string, status JobStatus) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		got, err := pool.Queue().GetJob(context.Background(), id)
		if err != nil {
			return false
		}
		job = got
		return got.Status == status
	}, 5*time.Second, 10*time.Millisecond, "job %s never reached %s", id, status)
	return job
}

func TestWorkerPoolRunsJob(t *testing.T) {
	pool := newTestPool(t, 2)
	pool.Registry().Register(&funcHandler{name: "echo", fn: func(_ context.Context, job *Job) error {
		job.Result = json.RawMessage(`{"done":true}`)
		return nil
	}})
	job := enqueue(t, pool, "echo")
	pool.Start()

	done := waitForStatus(t, pool, job.ID, JobStatusCompleted)
	assert.JSONEq(t, `{"done":true}`, string(done.Result))
	assert.Empty(t, done.Error)
}

func TestWorkerPoolRetriesTransientFailures(t *testing.T) {
	pool := newTestPool(t, 2)
	var attempts atomic.Int32
	pool.Registry().Register(&funcHandler{name: "flaky", fn: func(context.Context, *Job) error {
		if attempts.Add(1) < 3 {
			return errors.Mark(errors.New("stream read timed out"), errors.ErrPartitionFailure)
		}
		return nil
	}})
	job := enqueue(t, pool, "flaky")
	pool.Start()

	done := waitForStatus(t, pool, job.ID, JobStatusCompleted)
	assert.Equal(t, 2, done.RetryCount)
	assert.EqualValues(t, 3, attempts.Load())
}

func TestWorkerPoolGivesUpAfterMaxRetries(t *testing.T) {
	pool := newTestPool(t, 1)
	var attempts atomic.Int32
	pool.Registry().Register(&funcHandler{name: "sink-down", fn: func(context.Context, *Job) error {
		attempts.Add(1)
		return errors.Mark(errors.New("disk full"), errors.ErrSinkWrite)
	}})
	job := enqueue(t, pool, "sink-down")
	pool.Start()

	failed := waitForStatus(t, pool, job.ID, JobStatusFailed)
	assert.Equal(t, 1, failed.RetryCount)
	assert.Contains(t, failed.Error, "disk full")
	assert.EqualValues(t, 2, attempts.Load())
}

func TestWorkerPoolDoesNotRetryInvalidRequests(t *testing.T) {
	pool := newTestPool(t, 2)
	var attempts atomic.Int32
	pool.Registry().Register(&funcHandler{name: "bad", fn: func(context.Context, *Job) error {
		attempts.Add(1)
		return errors.NewInvalidRequestError("n must be >= 0")
	}})
	job := enqueue(t, pool, "bad")
	unroutable := enqueue(t, pool, "never-registered")
	pool.Start()

	failed := waitForStatus(t, pool, job.ID, JobStatusFailed)
	assert.Zero(t, failed.RetryCount)
	assert.EqualValues(t, 1, attempts.Load())
	waitForStatus(t, pool, unroutable.ID, JobStatusFailed)
}

func TestWorkerPoolRecoversOrphanedJobs(t *testing.T) {
	pool := newTestPool(t, 0)
	pool.Registry().Register(&funcHandler{name: "h", fn: func(context.Context, *Job) error { return nil }})

	job := enqueue(t, pool, "h")
	claimed, err := pool.Queue().Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, job.ID, claimed.ID)

	pool.Start()
	waitForStatus(t, pool, job.ID, JobStatusCompleted)
}

func TestWorkerPoolStopRequeuesInterruptedJob(t *testing.T) {
	pool := newTestPool(t, 0)
	started := make(chan struct{})
	pool.Registry().Register(&funcHandler{name: "slow", fn: func(ctx context.Context, _ *Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}})
	job := enqueue(t, pool, "slow")
	pool.Start()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}
	pool.Stop()

	got, err := pool.Queue().GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusQueued, got.Status)
	assert.Zero(t, got.RetryCount)
}
