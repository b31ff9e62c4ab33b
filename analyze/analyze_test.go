package analyze

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/topclients/am"
	"github.com/teranos/topclients/errors"
	testdb "github.com/teranos/topclients/internal/testing"
	"github.com/teranos/topclients/internal/util"
	"github.com/teranos/topclients/ixgest"
	"github.com/teranos/topclients/pulse/async"
	"github.com/teranos/topclients/pulse/schedule"
	"github.com/teranos/topclients/results"
	"github.com/teranos/topclients/topn"
)

func defaultConfig(t *testing.T) *am.Config {
	t.Helper()
	v := viper.New()
	am.SetDefaults(v)
	cfg, err := am.LoadWithViper(v)
	require.NoError(t, err)
	return cfg
}

var end = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, stream *ixgest.Stream) {
	t.Helper()
	at := func(min int) time.Time { return end.Add(time.Duration(min) * time.Minute) }
	require.NoError(t, stream.AppendBatch(context.Background(), []topn.Record{
		{Body: `1.1.1.1 - - "GET /a"`, Timestamp: at(-30)},
		{Body: `2.2.2.2 - - "GET /b"`, Timestamp: at(-20)},
		{Body: `1.1.1.1 - - "GET /c"`, Timestamp: at(-10)},
		{Body: `3.3.3.3 - - "GET /d"`, Timestamp: at(-90)}, // before the window
		{Body: `3.3.3.3 - - "GET /e"`, Timestamp: at(0)},   // end is exclusive
	}))
}

func newHandler(t *testing.T) (*Handler, *results.Store, *ixgest.Stream) {
	t.Helper()
	database := testdb.CreateMigratedTestDB(t)
	log := zaptest.NewLogger(t).Sugar()
	cfg := defaultConfig(t)
	pipeline := NewPipeline(cfg, database, log)
	return NewHandler(pipeline, Window(cfg), log),
		pipeline.Sink.(*results.Store),
		pipeline.Source.(*ixgest.Stream)
}

func newJob(t *testing.T, payload Payload) *async.Job {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	job, err := async.NewJobWithPayload(HandlerName, "test", data)
	require.NoError(t, err)
	return job
}

func TestExecuteWritesSnapshot(t *testing.T) {
	h, store, stream := newHandler(t)
	seed(t, stream)

	job := newJob(t, Payload{End: end})
	require.NoError(t, h.Execute(context.Background(), job))

	snap, err := store.Get(context.Background(), topn.ResultKey)
	require.NoError(t, err)
	assert.Equal(t, topn.ResultSet{{Key: "1.1.1.1", Count: 2}, {Key: "2.2.2.2", Count: 1}}, snap.Entries)

	var res topn.RunResult
	require.NoError(t, json.Unmarshal(job.Result, &res))
	assert.Equal(t, end, res.Window.End.UTC())
	assert.Equal(t, end.Add(-time.Hour), res.Window.Start.UTC())
	assert.EqualValues(t, 3, res.Stats.Records)
}

func TestExecutePayloadOverrides(t *testing.T) {
	h, store, stream := newHandler(t)
	seed(t, stream)

	job := newJob(t, Payload{End: end, WindowSeconds: 15 * 60, N: util.Ptr(1)})
	require.NoError(t, h.Execute(context.Background(), job))

	snap, err := store.Get(context.Background(), topn.ResultKey)
	require.NoError(t, err)
	assert.Equal(t, topn.ResultSet{{Key: "1.1.1.1", Count: 1}}, snap.Entries)
}

func TestExecuteRejectsBadPayload(t *testing.T) {
	h, _, _ := newHandler(t)

	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{`},
		{"no end", `{}`},
		{"negative window", `{"end":"2026-03-01T12:00:00Z","window_seconds":-1}`},
		{"negative n", `{"end":"2026-03-01T12:00:00Z","n":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := async.NewJobWithPayload(HandlerName, "test", json.RawMessage(tt.payload))
			require.NoError(t, err)
			err = h.Execute(context.Background(), job)
			require.Error(t, err)
			assert.True(t, errors.IsInvalidRequestError(err))
			assert.False(t, async.ClassifyError(err).Retryable)
		})
	}
}

func TestReconfigureAppliesToLaterJobs(t *testing.T) {
	h, store, stream := newHandler(t)
	seed(t, stream)

	cfg := defaultConfig(t)
	cfg.Pipeline.TopN = 1
	cfg.Pipeline.WindowMinutes = 25
	h.Reconfigure(cfg)

	require.NoError(t, h.Execute(context.Background(), newJob(t, Payload{End: end})))

	snap, err := store.Get(context.Background(), topn.ResultKey)
	require.NoError(t, err)
	assert.Equal(t, topn.ResultSet{{Key: "2.2.2.2", Count: 1}}, snap.Entries)
}

func TestPayloadFor(t *testing.T) {
	data, err := PayloadFor(90*time.Second, util.Ptr(5))(end)
	require.NoError(t, err)
	assert.JSONEq(t, `{"end":"2026-03-01T12:00:00Z","window_seconds":90,"n":5}`, string(data))
}

func TestScheduledRunEndToEnd(t *testing.T) {
	database := testdb.CreateMigratedTestDB(t)
	log := zaptest.NewLogger(t).Sugar()
	cfg := defaultConfig(t)
	pipeline := NewPipeline(cfg, database, log)
	seed(t, pipeline.Source.(*ixgest.Stream))

	pool := async.NewWorkerPool(context.Background(), database, async.WorkerPoolConfig{
		Workers: 1, PollInterval: 10 * time.Millisecond, MaxRetries: 1,
	}, log)
	pool.Registry().Register(NewHandler(pipeline, Window(cfg), log))
	t.Cleanup(pool.Stop)

	ticker := schedule.NewTicker(context.Background(), pool.Queue(), schedule.TickerConfig{
		Interval: time.Hour, HandlerName: HandlerName,
	}, PayloadFor(time.Hour, nil), log)

	id, created, err := ticker.Tick(context.Background(), end)
	require.NoError(t, err)
	require.True(t, created)
	pool.Start()

	require.Eventually(t, func() bool {
		job, err := pool.Queue().GetJob(context.Background(), id)
		return err == nil && job.Status == async.JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	snap, err := pipeline.Sink.(*results.Store).Get(context.Background(), topn.ResultKey)
	require.NoError(t, err)
	assert.Equal(t, topn.ResultSet{{Key: "1.1.1.1", Count: 2}, {Key: "2.2.2.2", Count: 1}}, snap.Entries)
}
