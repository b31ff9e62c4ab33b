package topn

import (
	"context"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/topclients/errors"
	"github.com/teranos/topclients/logger"
)

// DefaultN is the number of clients reported when a Pipeline has no N set.
const DefaultN = 10

// cancellation is checked every this many records inside a partition.
const ctxCheckEvery = 1024

// Pipeline drives one top-N run: it maps every partition in parallel,
// waits for all of them, shuffles the partial counts by key, reduces and
// selects, and writes the result to the sink.
//
// A Pipeline holds configuration only; every run builds its own
// aggregators, so one Pipeline can serve concurrent runs.
type Pipeline struct {
	Source Source
	Sink   Sink

	// N is the number of top entries to keep. Zero keeps none.
	N int
	// Workers bounds how many partitions are mapped concurrently.
	// Zero means runtime.NumCPU().
	Workers int
	// Reducers is the number of reducer shards. One (the default) funnels
	// every key through a single aggregator and selector; more shards
	// select per shard and combine with MergeTopN.
	Reducers int
	// DisableCombiner ships raw (key, 1) pairs through the shuffle instead
	// of per-partition partial sums. The result is identical.
	DisableCombiner bool
	// ResultKey overrides the sink key. Empty means ResultKey.
	ResultKey string

	Logger *zap.SugaredLogger
}

// Stats summarises what a run consumed.
type Stats struct {
	Partitions    int   `json:"partitions"`
	Records       int64 `json:"records"`
	Malformed     int64 `json:"malformed"`
	ShuffledPairs int64 `json:"shuffled_pairs"`
	DistinctKeys  int   `json:"distinct_keys"`
}

// RunResult is what a successful run produced and wrote.
type RunResult struct {
	RunID    string        `json:"run_id"`
	Window   Window        `json:"window"`
	Results  ResultSet     `json:"results"`
	Stats    Stats         `json:"stats"`
	Duration time.Duration `json:"duration"`
}

// partitionOutput is what one map task hands to the shuffle.
type partitionOutput struct {
	pairs     []KeyCount
	records   int64
	malformed int64
}

// Run executes the pipeline over the window. On any partition failure the
// run fails with an error matching errors.ErrPartitionFailure and nothing is
// written; if the sink rejects the result the error matches
// errors.ErrSinkWrite.
func (p *Pipeline) Run(ctx context.Context, w Window) (*RunResult, error) {
	if err := p.validate(w); err != nil {
		return nil, err
	}

	started := time.Now()
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx, p.logger())

	log.Infow("Top-N run starting",
		logger.FieldStartTime, w.Start,
		logger.FieldEndTime, w.End,
		logger.FieldTopN, p.N,
	)

	parts, err := p.Source.Partitions(ctx, w)
	if err != nil {
		err = errors.Mark(errors.Wrap(err, "list partitions"), errors.ErrPartitionFailure)
		log.Errorw("Top-N run failed", logger.FieldOperation, "list", logger.FieldError, err)
		return nil, err
	}

	outputs, err := p.mapAll(ctx, parts, log)
	if err != nil {
		log.Errorw("Top-N run failed", logger.FieldOperation, "map", logger.FieldError, err)
		return nil, err
	}

	results, stats, err := p.reduce(ctx, outputs)
	if err != nil {
		log.Errorw("Top-N run failed", logger.FieldOperation, "reduce", logger.FieldError, err)
		return nil, err
	}
	stats.Partitions = len(parts)

	key := p.resultKey()
	if err := p.Sink.Put(ctx, key, results); err != nil {
		err = errors.Mark(errors.Wrapf(err, "write %s", key), errors.ErrSinkWrite)
		log.Errorw("Top-N run failed", logger.FieldOperation, "sink", logger.FieldError, err)
		return nil, err
	}

	res := &RunResult{
		RunID:    runID,
		Window:   w,
		Results:  results,
		Stats:    stats,
		Duration: time.Since(started),
	}
	log.Infow("Top-N run complete",
		logger.FieldPartitions, stats.Partitions,
		logger.FieldRecords, stats.Records,
		logger.FieldMalformed, stats.Malformed,
		logger.FieldDistinctKeys, stats.DistinctKeys,
		logger.FieldCount, len(results),
		logger.FieldResultKey, key,
		logger.FieldDurationMS, res.Duration.Milliseconds(),
	)
	return res, nil
}

func (p *Pipeline) validate(w Window) error {
	if p.Source == nil {
		return errors.NewInvalidRequestError("pipeline has no source")
	}
	if p.Sink == nil {
		return errors.NewInvalidRequestError("pipeline has no sink")
	}
	if p.N < 0 {
		return errors.NewInvalidRequestError("n must be >= 0, got %d", p.N)
	}
	if p.Workers < 0 {
		return errors.NewInvalidRequestError("workers must be >= 0, got %d", p.Workers)
	}
	if p.Reducers < 0 {
		return errors.NewInvalidRequestError("reducers must be >= 0, got %d", p.Reducers)
	}
	return w.Validate()
}

// mapAll parses and combines every partition, at most Workers at a time.
// It returns only once every partition has finished, which is the barrier
// in front of the shuffle.
func (p *Pipeline) mapAll(ctx context.Context, parts []Partition, log *zap.SugaredLogger) ([]partitionOutput, error) {
	outputs := make([]partitionOutput, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for i, part := range parts {
		g.Go(func() error {
			out, err := p.mapPartition(gctx, part)
			if err != nil {
				err = errors.Wrapf(err, "partition %s", part.ID())
				err = errors.WithDetail(err, "partition: "+part.ID())
				return errors.Mark(err, errors.ErrPartitionFailure)
			}
			log.Debugw("Partition mapped",
				logger.FieldPartition, part.ID(),
				logger.FieldRecords, out.records,
				logger.FieldMalformed, out.malformed,
				logger.FieldCount, len(out.pairs),
			)
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "run cancelled"), errors.ErrPartitionFailure)
	}
	return outputs, nil
}

func (p *Pipeline) mapPartition(ctx context.Context, part Partition) (partitionOutput, error) {
	var out partitionOutput
	combiner := NewLocalAggregator()

	err := part.Each(ctx, func(r Record) error {
		out.records++
		if out.records%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		kc, err := ParseRecord(r)
		if err != nil {
			out.malformed++
			return nil
		}
		if p.DisableCombiner {
			out.pairs = append(out.pairs, kc)
		} else {
			combiner.Add(kc)
		}
		return nil
	})
	if err != nil {
		return partitionOutput{}, err
	}
	if !p.DisableCombiner {
		out.pairs = combiner.Partials()
	}
	return out, nil
}

// reduce shuffles the partition outputs into reducer shards, aggregates and
// selects per shard, and merges the shard results.
func (p *Pipeline) reduce(ctx context.Context, outputs []partitionOutput) (ResultSet, Stats, error) {
	var stats Stats
	pairs := make([][]KeyCount, len(outputs))
	for i, out := range outputs {
		pairs[i] = out.pairs
		stats.Records += out.records
		stats.Malformed += out.malformed
		stats.ShuffledPairs += int64(len(out.pairs))
	}

	reducers := max(p.Reducers, 1)
	buckets := Shuffle(pairs, reducers)
	shardResults := make([]ResultSet, reducers)
	shardKeys := make([]int, reducers)

	g, _ := errgroup.WithContext(ctx)
	for i, bucket := range buckets {
		g.Go(func() error {
			agg := NewGlobalAggregator()
			agg.MergeAll(bucket)
			sel := NewSelector(p.N)
			if err := sel.OfferAll(agg.Totals()); err != nil {
				return err
			}
			rs, err := sel.Close()
			if err != nil {
				return err
			}
			shardResults[i] = rs
			shardKeys[i] = agg.Len()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, errors.Wrap(err, "reduce")
	}

	for _, n := range shardKeys {
		stats.DistinctKeys += n
	}
	if reducers == 1 {
		return shardResults[0], stats, nil
	}
	return MergeTopN(p.N, shardResults...), stats, nil
}

func (p *Pipeline) workers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return runtime.NumCPU()
}

func (p *Pipeline) resultKey() string {
	if p.ResultKey != "" {
		return p.ResultKey
	}
	return ResultKey
}

func (p *Pipeline) logger() *zap.SugaredLogger {
	if p.Logger != nil {
		return p.Logger
	}
	return logger.Logger.Named("topn")
}
