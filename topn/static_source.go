package topn

import (
	"context"
	"fmt"
)

// StaticSource serves fixed in-memory partitions and ignores the window.
// It backs one-off runs over a file and the tests.
type StaticSource struct {
	parts [][]Record
}

// NewStaticSource builds a source with one partition per slice of lines.
func NewStaticSource(partitions ...[]string) *StaticSource {
	s := &StaticSource{parts: make([][]Record, len(partitions))}
	for i, lines := range partitions {
		recs := make([]Record, len(lines))
		for j, l := range lines {
			recs[j] = Record{Body: l}
		}
		s.parts[i] = recs
	}
	return s
}

// NewStaticSourceFromRecords builds a source from prebuilt record partitions.
func NewStaticSourceFromRecords(partitions ...[]Record) *StaticSource {
	return &StaticSource{parts: partitions}
}

// Partitions returns every configured partition.
func (s *StaticSource) Partitions(_ context.Context, _ Window) ([]Partition, error) {
	out := make([]Partition, len(s.parts))
	for i, recs := range s.parts {
		out[i] = staticPartition{id: fmt.Sprintf("static-%d", i), records: recs}
	}
	return out, nil
}

type staticPartition struct {
	id      string
	records []Record
}

func (p staticPartition) ID() string { return p.id }

func (p staticPartition) Each(ctx context.Context, fn func(Record) error) error {
	for _, r := range p.records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}
