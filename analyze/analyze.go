// Package analyze runs top-N pipelines as background jobs.
//
// The scheduler enqueues a job per tick with the tick time as the logical
// end of the window; the worker pool routes it here by HandlerName.
package analyze

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/topclients/am"
	"github.com/teranos/topclients/errors"
	"github.com/teranos/topclients/ixgest"
	"github.com/teranos/topclients/logger"
	"github.com/teranos/topclients/pulse/async"
	"github.com/teranos/topclients/pulse/schedule"
	"github.com/teranos/topclients/results"
	"github.com/teranos/topclients/topn"
)

// HandlerName routes analyze jobs.
const HandlerName = "topn.analyze"

// Payload describes one scheduled run. Zero WindowSeconds and nil N fall
// back to the handler's configured values.
type Payload struct {
	End           time.Time `json:"end"`
	WindowSeconds int64     `json:"window_seconds,omitempty"`
	N             *int      `json:"n,omitempty"`
}

// Handler executes analyze jobs against a pipeline template.
type Handler struct {
	mu       sync.RWMutex
	template topn.Pipeline
	window   time.Duration
	logger   *zap.SugaredLogger
}

var _ async.JobHandler = (*Handler)(nil)

// NewHandler copies template; each job runs its own copy.
func NewHandler(template *topn.Pipeline, window time.Duration, log *zap.SugaredLogger) *Handler {
	if log == nil {
		log = logger.Logger
	}
	return &Handler{template: *template, window: window, logger: log.Named("analyze")}
}

// Name implements async.JobHandler.
func (h *Handler) Name() string {
	return HandlerName
}

// Reconfigure swaps the tuning knobs used by later jobs. Jobs already
// running keep the values they started with.
func (h *Handler) Reconfigure(cfg *am.Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.template.N = cfg.Pipeline.TopN
	h.template.Workers = cfg.Pipeline.Workers
	h.template.Reducers = cfg.Pipeline.Reducers
	h.template.DisableCombiner = !cfg.Pipeline.Combiner
	h.window = time.Duration(cfg.Pipeline.WindowMinutes) * time.Minute
	h.logger.Infow("Analyze handler reconfigured",
		logger.FieldTopN, cfg.Pipeline.TopN,
		"window", h.window.String())
}

// Execute runs one pipeline and stores the RunResult in job.Result.
func (h *Handler) Execute(ctx context.Context, job *async.Job) error {
	var payload Payload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return errors.NewInvalidRequestError("analyze payload: %v", err)
	}
	if payload.End.IsZero() {
		return errors.NewInvalidRequestError("analyze payload has no end time")
	}
	if payload.WindowSeconds < 0 {
		return errors.NewInvalidRequestError("window_seconds must be >= 0, got %d", payload.WindowSeconds)
	}

	h.mu.RLock()
	pipeline := h.template
	window := h.window
	h.mu.RUnlock()

	if payload.WindowSeconds > 0 {
		window = time.Duration(payload.WindowSeconds) * time.Second
	}
	if payload.N != nil {
		pipeline.N = *payload.N
	}
	pipeline.Logger = logger.FromContext(logger.WithJobID(ctx, job.ID), h.logger)

	res, err := pipeline.Run(ctx, topn.WindowEndingAt(payload.End, window))
	if err != nil {
		return err
	}

	out, err := json.Marshal(res)
	if err != nil {
		return errors.Wrap(err, "failed to marshal run result")
	}
	job.Result = out
	return nil
}

// PayloadFor builds scheduler payloads that take each tick as the window end.
func PayloadFor(window time.Duration, n *int) schedule.PayloadFunc {
	return func(tick time.Time) (json.RawMessage, error) {
		data, err := json.Marshal(Payload{
			End:           tick.UTC(),
			WindowSeconds: int64(window / time.Second),
			N:             n,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal analyze payload")
		}
		return data, nil
	}
}

// NewPipeline wires the SQLite stream and result store from config.
func NewPipeline(cfg *am.Config, database *sql.DB, log *zap.SugaredLogger) *topn.Pipeline {
	if log == nil {
		log = logger.Logger
	}
	stream := ixgest.NewStream(database, ixgest.Config{
		PartitionSize: cfg.Pipeline.PartitionSize,
		BatchSize:     cfg.Ingest.BatchSize,
	}, log.Named("ixgest"))

	return &topn.Pipeline{
		Source:          stream,
		Sink:            results.NewStore(database, log.Named("results")),
		N:               cfg.Pipeline.TopN,
		Workers:         cfg.Pipeline.Workers,
		Reducers:        cfg.Pipeline.Reducers,
		DisableCombiner: !cfg.Pipeline.Combiner,
		ResultKey:       cfg.Pipeline.ResultKey,
		Logger:          log.Named("topn"),
	}
}

// Window returns the configured analysis window.
func Window(cfg *am.Config) time.Duration {
	return time.Duration(cfg.Pipeline.WindowMinutes) * time.Minute
}
