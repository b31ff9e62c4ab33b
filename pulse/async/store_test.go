package async

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/topclients/errors"
	testdb "github.com/teranos/topclients/internal/testing"
)

func newJob(t *testing.T, handler string) *Job {
	t.Helper()
	job, err := NewJobWithPayload(handler, "test", json.RawMessage(`{"n":3}`))
	require.NoError(t, err)
	return job
}

func TestNewJobWithPayload(t *testing.T) {
	job, err := NewJobWithPayload("topn.analyze", "", nil)
	require.NoError(t, err)
	assert.Len(t, job.ID, 36)
	assert.Equal(t, JobStatusQueued, job.Status)
	assert.Equal(t, "system", job.Source)

	_, err = NewJobWithPayload("", "cli", nil)
	assert.Error(t, err)
}

func TestJobLifecycle(t *testing.T) {
	job := newJob(t, "h")

	job.Start()
	assert.Equal(t, JobStatusRunning, job.Status)
	require.NotNil(t, job.StartedAt)

	job.Retry(errors.New("partition failure"))
	assert.Equal(t, JobStatusQueued, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.Nil(t, job.StartedAt)

	job.Fail(errors.New("boom"))
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "boom", job.Error)
	assert.False(t, job.Status.IsActive())

	assert.True(t, IsValidStatus("running"))
	assert.False(t, IsValidStatus("paused"))
}

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(testdb.CreateMigratedTestDB(t))
	ctx := context.Background()

	job := newJob(t, "topn.analyze")
	require.NoError(t, store.CreateJob(ctx, job))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "topn.analyze", got.HandlerName)
	assert.JSONEq(t, `{"n":3}`, string(got.Payload))
	assert.Equal(t, JobStatusQueued, got.Status)
	assert.Nil(t, got.StartedAt)
	assert.WithinDuration(t, job.CreatedAt, got.CreatedAt, time.Second)

	got.Start()
	got.Result = json.RawMessage(`{"ok":true}`)
	got.Complete()
	require.NoError(t, store.UpdateJob(ctx, got))

	again, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, again.Status)
	assert.JSONEq(t, `{"ok":true}`, string(again.Result))
	assert.NotNil(t, again.StartedAt)
	assert.NotNil(t, again.CompletedAt)
}

func TestStoreNotFound(t *testing.T) {
	store := NewStore(testdb.CreateMigratedTestDB(t))

	_, err := store.GetJob(context.Background(), "missing")
	assert.True(t, errors.IsNotFoundError(err))

	err = store.UpdateJob(context.Background(), &Job{ID: "missing", Status: JobStatusFailed})
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStoreFindActiveAndStats(t *testing.T) {
	store := NewStore(testdb.CreateMigratedTestDB(t))
	ctx := context.Background()

	active, err := store.FindActiveJob(ctx, "topn.analyze")
	require.NoError(t, err)
	assert.Nil(t, active)

	done := newJob(t, "topn.analyze")
	done.Complete()
	require.NoError(t, store.CreateJob(ctx, done))
	other := newJob(t, "other")
	require.NoError(t, store.CreateJob(ctx, other))

	active, err = store.FindActiveJob(ctx, "topn.analyze")
	require.NoError(t, err)
	assert.Nil(t, active, "completed jobs are not active")

	queued := newJob(t, "topn.analyze")
	require.NoError(t, store.CreateJob(ctx, queued))
	active, err = store.FindActiveJob(ctx, "topn.analyze")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, queued.ID, active.ID)

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &QueueStats{Queued: 2, Completed: 1, Total: 3}, stats)
}

func TestStoreCreateFailure(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("INSERT INTO jobs").WillReturnError(errors.New("database is locked"))

	err = NewStore(conn).CreateJob(context.Background(), newJob(t, "h"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create job")
	assert.NoError(t, mock.ExpectationsWereMet())
}
