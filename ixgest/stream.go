// Package ixgest ingests raw access-log lines into the event stream the
// top-N pipeline reads from.
package ixgest

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/topclients/errors"
	"github.com/teranos/topclients/logger"
	"github.com/teranos/topclients/topn"
)

const (
	// DefaultPartitionSize is the number of rows handed to one map task.
	DefaultPartitionSize = 10000
	// DefaultBatchSize is the number of lines written per transaction on import.
	DefaultBatchSize = 500

	// Apache combined-log lines rarely exceed a few KB; allow generous slack.
	maxLineBytes = 1 << 20
)

// Config tunes a Stream.
type Config struct {
	PartitionSize int
	BatchSize     int
}

// Stream is the SQLite-backed event stream. It implements topn.Source.
type Stream struct {
	db            *sql.DB
	partitionSize int
	batchSize     int
	logger        *zap.SugaredLogger
}

var _ topn.Source = (*Stream)(nil)

// NewStream wraps a migrated database. Zero config values take defaults.
func NewStream(db *sql.DB, cfg Config, log *zap.SugaredLogger) *Stream {
	if cfg.PartitionSize <= 0 {
		cfg.PartitionSize = DefaultPartitionSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if log == nil {
		log = logger.Logger.Named("ixgest")
	}
	return &Stream{
		db:            db,
		partitionSize: cfg.PartitionSize,
		batchSize:     cfg.BatchSize,
		logger:        log,
	}
}

// Append stores a single event.
func (s *Stream) Append(ctx context.Context, rec topn.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO log_events (ts, body) VALUES (?, ?)`,
		rec.Timestamp.UnixNano(), rec.Body)
	if err != nil {
		return errors.Wrap(err, "failed to append event")
	}
	return nil
}

// AppendBatch stores events in one transaction; either all land or none do.
func (s *Stream) AppendBatch(ctx context.Context, recs []topn.Record) (err error) {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction for batch append")
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				s.logger.Errorw("failed to rollback batch append", logger.FieldError, rollbackErr)
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO log_events (ts, body) VALUES (?, ?)`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare event insert statement")
	}
	defer stmt.Close()

	for i, rec := range recs {
		if _, err = stmt.ExecContext(ctx, rec.Timestamp.UnixNano(), rec.Body); err != nil {
			return errors.Wrapf(err, "failed to insert event %d of %d", i+1, len(recs))
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit batch append")
	}
	return nil
}

// ImportResult reports what ImportReader stored.
type ImportResult struct {
	Lines   int64 `json:"lines"`
	Skipped int64 `json:"skipped"`
	Batches int   `json:"batches"`
}

// ImportReader reads one event per line from r and stores them in batches,
// every event stamped with ts. Blank lines carry no event and are skipped;
// everything else is stored verbatim, malformed or not, since dropping bad
// records is the pipeline's job.
//
// Batches already committed stay committed if a later batch fails.
func (s *Stream) ImportReader(ctx context.Context, r io.Reader, ts time.Time) (ImportResult, error) {
	var res ImportResult

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	batch := make([]topn.Record, 0, s.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.AppendBatch(ctx, batch); err != nil {
			return errors.Wrapf(err, "batch %d", res.Batches+1)
		}
		res.Lines += int64(len(batch))
		res.Batches++
		s.logger.Debugw("Imported batch",
			logger.FieldBatchSize, len(batch),
			logger.FieldRecords, res.Lines,
		)
		batch = batch[:0]
		return nil
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			res.Skipped++
			continue
		}
		batch = append(batch, topn.Record{Body: line, Timestamp: ts})
		if len(batch) >= s.batchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return res, errors.Wrap(err, "failed to read input")
	}
	if err := flush(); err != nil {
		return res, err
	}

	s.logger.Infow("Import complete",
		logger.FieldRecords, res.Lines,
		"skipped", res.Skipped,
		"batches", res.Batches,
	)
	return res, nil
}

// Count returns the number of events inside the window.
func (s *Stream) Count(ctx context.Context, w topn.Window) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM log_events WHERE ts >= ? AND ts < ?`,
		w.Start.UnixNano(), w.End.UnixNano()).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count events")
	}
	return n, nil
}

// Partitions splits the window's events into contiguous id ranges of at
// most partitionSize rows, in insertion order.
func (s *Stream) Partitions(ctx context.Context, w topn.Window) ([]topn.Partition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT MIN(id), MAX(id) FROM (
			SELECT id, (ROW_NUMBER() OVER (ORDER BY id) - 1) / ? AS bucket
			FROM log_events
			WHERE ts >= ? AND ts < ?
		)
		GROUP BY bucket
		ORDER BY bucket`,
		s.partitionSize, w.Start.UnixNano(), w.End.UnixNano())
	if err != nil {
		return nil, errors.Wrap(err, "failed to query partitions")
	}
	defer rows.Close()

	var parts []topn.Partition
	for rows.Next() {
		p := &rangePartition{db: s.db, window: w}
		if err := rows.Scan(&p.first, &p.last); err != nil {
			return nil, errors.Wrap(err, "failed to scan partition bounds")
		}
		parts = append(parts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate partitions")
	}

	s.logger.Debugw("Partitioned window",
		logger.FieldStartTime, w.Start,
		logger.FieldEndTime, w.End,
		logger.FieldPartitions, len(parts),
	)
	return parts, nil
}

// rangePartition is the window's events with ids in [first, last].
type rangePartition struct {
	db     *sql.DB
	window topn.Window
	first  int64
	last   int64
}

func (p *rangePartition) ID() string {
	return fmt.Sprintf("rows %d-%d", p.first, p.last)
}

func (p *rangePartition) Each(ctx context.Context, fn func(topn.Record) error) error {
	rows, err := p.db.QueryContext(ctx, `
		SELECT ts, body FROM log_events
		WHERE id BETWEEN ? AND ? AND ts >= ? AND ts < ?
		ORDER BY id`,
		p.first, p.last, p.window.Start.UnixNano(), p.window.End.UnixNano())
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", p.ID())
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ts   int64
			body string
		)
		if err := rows.Scan(&ts, &body); err != nil {
			return errors.Wrapf(err, "failed to scan event in %s", p.ID())
		}
		if err := fn(topn.Record{Body: body, Timestamp: time.Unix(0, ts).UTC()}); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Wrapf(err, "failed to iterate %s", p.ID())
	}
	return nil
}
