package topn

import (
	"context"
	"encoding/json"
	"time"

	"github.com/teranos/topclients/errors"
)

// ResultKey is the fixed sink key under which each run stores its ResultSet.
const ResultKey = "topN.clientIPs"

// Record is one raw access-log line as delivered by the ingestion stream.
type Record struct {
	Body      string
	Timestamp time.Time
}

// KeyCount pairs a grouping key with a count. Parsing emits Count=1, the
// aggregators emit partial and total sums.
type KeyCount struct {
	Key   string
	Count int64
}

// TopEntry is one row of the final result.
type TopEntry struct {
	Key   string `json:"clientIP"`
	Count int64  `json:"count"`
}

// ResultSet is the ordered top-N list produced by one run, sorted by count
// descending.
type ResultSet []TopEntry

// MarshalJSON encodes an empty result as [] rather than null so a completed
// run over an empty window stays distinguishable from "no run yet".
func (rs ResultSet) MarshalJSON() ([]byte, error) {
	if rs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]TopEntry(rs))
}

// Keys returns the keys of rs in order.
func (rs ResultSet) Keys() []string {
	keys := make([]string, len(rs))
	for i, e := range rs {
		keys[i] = e.Key
	}
	return keys
}

// Window is the half-open time range [Start, End) a run aggregates over.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// WindowEndingAt returns the window of length d that ends at end.
func WindowEndingAt(end time.Time, d time.Duration) Window {
	return Window{Start: end.Add(-d), End: end}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Validate rejects windows whose start is after their end.
func (w Window) Validate() error {
	if w.End.Before(w.Start) {
		return errors.NewInvalidRequestError("window start %s is after end %s",
			w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	return nil
}

// Source lists the partitions of the records that fall inside a window.
// How records are split into partitions is up to the implementation; the
// pipeline only requires the partitions to be disjoint and complete.
type Source interface {
	Partitions(ctx context.Context, w Window) ([]Partition, error)
}

// Partition is a disjoint subset of the window's records.
type Partition interface {
	ID() string
	// Each calls fn for every record in the partition. A non-nil return from
	// fn, a cancelled ctx or a read error stops iteration and is returned.
	Each(ctx context.Context, fn func(Record) error) error
}

// Sink stores the ResultSet of a run under a fixed key, replacing any
// previous value.
type Sink interface {
	Put(ctx context.Context, key string, rs ResultSet) error
}
