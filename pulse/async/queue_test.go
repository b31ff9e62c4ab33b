package async

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/topclients/errors"
	testdb "github.com/teranos/topclients/internal/testing"
)

func TestQueueDequeueOrder(t *testing.T) {
	q := NewQueue(testdb.CreateMigratedTestDB(t))
	ctx := context.Background()

	first := newJob(t, "h")
	second := newJob(t, "h")
	second.CreatedAt = first.CreatedAt.Add(time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, second))
	require.NoError(t, q.Enqueue(ctx, first))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, JobStatusRunning, got.Status)

	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.ID, got.ID)

	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "empty queue")
}

func TestQueueCompleteAndFail(t *testing.T) {
	q := NewQueue(testdb.CreateMigratedTestDB(t))
	ctx := context.Background()

	job := newJob(t, "h")
	require.NoError(t, q.Enqueue(ctx, job))
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)

	require.NoError(t, q.FailJob(ctx, job, assert.AnError))
	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, stored.Status)
	assert.Equal(t, assert.AnError.Error(), stored.Error)
}

func TestQueueCancelJob(t *testing.T) {
	q := NewQueue(testdb.CreateMigratedTestDB(t))
	ctx := context.Background()

	queued := newJob(t, "h")
	require.NoError(t, q.Enqueue(ctx, queued))

	cancelled, err := q.CancelJob(ctx, queued.ID, "superseded")
	require.NoError(t, err)
	assert.Equal(t, JobStatusCancelled, cancelled.Status)

	stored, err := q.GetJob(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCancelled, stored.Status)
	assert.Equal(t, "superseded", stored.Error)
	assert.NotNil(t, stored.CompletedAt)

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "cancelled jobs are never dequeued")

	_, err = q.CancelJob(ctx, queued.ID, "")
	assert.True(t, errors.IsInvalidRequestError(err), "already cancelled")

	running := newJob(t, "h")
	require.NoError(t, q.Enqueue(ctx, running))
	_, err = q.Dequeue(ctx)
	require.NoError(t, err)
	_, err = q.CancelJob(ctx, running.ID, "")
	assert.True(t, errors.IsInvalidRequestError(err), "running jobs keep running")

	_, err = q.CancelJob(ctx, "missing", "")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestQueueSubscribe(t *testing.T) {
	q := NewQueue(testdb.CreateMigratedTestDB(t))
	ctx := context.Background()
	updates := q.Subscribe()

	job := newJob(t, "h")
	require.NoError(t, q.Enqueue(ctx, job))
	_, err := q.Dequeue(ctx)
	require.NoError(t, err)

	assert.Equal(t, JobStatusQueued, (<-updates).Status)
	assert.Equal(t, JobStatusRunning, (<-updates).Status)

	q.Unsubscribe(updates)
	_, open := <-updates
	assert.False(t, open)
}
