// Package schedule enqueues recurring jobs on a fixed interval.
package schedule

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/topclients/errors"
	"github.com/teranos/topclients/logger"
	"github.com/teranos/topclients/pulse/async"
)

// PayloadFunc builds the job payload for a tick. The tick time is the
// logical start of the run it schedules.
type PayloadFunc func(tick time.Time) (json.RawMessage, error)

// TickerConfig contains configuration for the ticker
type TickerConfig struct {
	Interval    time.Duration
	HandlerName string
	// RunImmediately enqueues once on Start instead of waiting a full interval.
	RunImmediately bool
}

// Ticker enqueues one job per interval for a single handler. A tick is
// skipped while an earlier job for the same handler is still queued or
// running, so slow runs never pile up.
type Ticker struct {
	queue   *async.Queue
	payload PayloadFunc
	cfg     TickerConfig
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *zap.SugaredLogger

	mu              sync.Mutex
	lastTickAt      time.Time
	ticksSinceStart int64
	enqueued        int64
	skipped         int64
}

// NewTicker creates a ticker; cancelling ctx stops it like Stop does.
func NewTicker(ctx context.Context, queue *async.Queue, cfg TickerConfig, payload PayloadFunc, log *zap.SugaredLogger) *Ticker {
	if log == nil {
		log = logger.Logger
	}
	tickerCtx, cancel := context.WithCancel(ctx)
	return &Ticker{
		queue:   queue,
		payload: payload,
		cfg:     cfg,
		ctx:     tickerCtx,
		cancel:  cancel,
		logger:  log.Named("schedule"),
	}
}

// Start begins the ticker loop
func (t *Ticker) Start() error {
	if t.cfg.Interval <= 0 {
		return errors.NewInvalidRequestError("schedule interval must be positive, got %s", t.cfg.Interval)
	}
	if t.cfg.HandlerName == "" {
		return errors.NewInvalidRequestError("schedule has no handler name")
	}

	t.wg.Add(1)
	go t.run()
	t.logger.Infow("Ticker started",
		"interval", t.cfg.Interval,
		logger.FieldHandler, t.cfg.HandlerName,
	)
	return nil
}

// Stop gracefully stops the ticker
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()
	t.logger.Infow("Ticker stopped")
}

func (t *Ticker) run() {
	defer t.wg.Done()

	if t.cfg.RunImmediately {
		t.tick(time.Now())
	}

	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case tickTime := <-ticker.C:
			t.tick(tickTime)
		}
	}
}

func (t *Ticker) tick(now time.Time) {
	t.mu.Lock()
	t.lastTickAt = now
	t.ticksSinceStart++
	n := t.ticksSinceStart
	t.mu.Unlock()

	if _, _, err := t.Tick(t.ctx, now); err != nil && t.ctx.Err() == nil {
		t.logger.Warnw("Tick failed", logger.FieldError, err, "tick", n)
	}
}

// Tick enqueues the job for the given tick unless one is still active.
// It returns the id of the enqueued (or still active) job and whether a
// new job was created.
func (t *Ticker) Tick(ctx context.Context, now time.Time) (string, bool, error) {
	existing, err := t.queue.FindActiveJob(ctx, t.cfg.HandlerName)
	if err != nil {
		return "", false, errors.Wrap(err, "failed to check for active job")
	}
	if existing != nil {
		t.mu.Lock()
		t.skipped++
		t.mu.Unlock()
		t.logger.Infow("Skipping tick, previous job still active",
			logger.FieldJobID, existing.ID,
			"status", existing.Status,
			"tick", now,
		)
		return existing.ID, false, nil
	}

	payload, err := t.payload(now)
	if err != nil {
		return "", false, errors.Wrap(err, "failed to build payload")
	}
	job, err := async.NewJobWithPayload(t.cfg.HandlerName, "schedule", payload)
	if err != nil {
		return "", false, errors.Wrap(err, "failed to create job")
	}
	if err := t.queue.Enqueue(ctx, job); err != nil {
		return "", false, errors.Wrap(err, "failed to enqueue job")
	}

	t.mu.Lock()
	t.enqueued++
	t.mu.Unlock()
	t.logger.Infow("Enqueued scheduled job",
		logger.FieldJobID, job.ID,
		logger.FieldHandler, t.cfg.HandlerName,
		"tick", now,
		"next_at", now.Add(t.cfg.Interval),
	)
	return job.ID, true, nil
}

// Stats describes ticker activity since start.
type Stats struct {
	LastTickAt      time.Time     `json:"last_tick_at"`
	TicksSinceStart int64         `json:"ticks_since_start"`
	Enqueued        int64         `json:"enqueued"`
	Skipped         int64         `json:"skipped"`
	Interval        time.Duration `json:"interval"`
}

// GetStats returns ticker statistics
func (t *Ticker) GetStats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Stats{
		LastTickAt:      t.lastTickAt,
		TicksSinceStart: t.ticksSinceStart,
		Enqueued:        t.enqueued,
		Skipped:         t.skipped,
		Interval:        t.cfg.Interval,
	}
}
