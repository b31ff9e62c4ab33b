package topn

import (
	"container/heap"
	"sort"

	"github.com/teranos/topclients/errors"
)

type selectorState int

const (
	stateAccumulating selectorState = iota
	stateDraining
	stateEmitted
)

func (s selectorState) String() string {
	switch s {
	case stateAccumulating:
		return "accumulating"
	case stateDraining:
		return "draining"
	case stateEmitted:
		return "emitted"
	default:
		return "unknown"
	}
}

type rankedEntry struct {
	TopEntry
	seq uint64 // arrival order at the selector
}

// less orders entries from weakest to strongest: lower count first, and for
// equal counts the later arrival first, so the earliest key survives ties.
func (a rankedEntry) less(b rankedEntry) bool {
	if a.Count != b.Count {
		return a.Count < b.Count
	}
	return a.seq > b.seq
}

// minHeap keeps the weakest entry at index 0.
type minHeap []rankedEntry

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return h[i].less(h[j]) }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *minHeap) Push(x any) { *h = append(*h, x.(rankedEntry)) }

func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Selector keeps the N largest (key, total) pairs it has been offered in a
// bounded min-heap. It is single use: Offer until the input is exhausted,
// then Close once to get the sorted ResultSet.
//
// Ties in count are broken by arrival order: the key offered first ranks
// higher and is kept when the heap is full.
type Selector struct {
	n     int
	heap  minHeap
	seq   uint64
	state selectorState
}

// NewSelector returns a selector that retains at most n entries. n <= 0
// yields an empty result.
func NewSelector(n int) *Selector {
	if n < 0 {
		n = 0
	}
	return &Selector{n: n, heap: make(minHeap, 0, n+1)}
}

// Offer presents one key with its final total.
func (s *Selector) Offer(key string, count int64) error {
	if s.state != stateAccumulating {
		return errors.Wrapf(errors.ErrSelectorClosed, "offer %q while %s", key, s.state)
	}
	e := rankedEntry{TopEntry: TopEntry{Key: key, Count: count}, seq: s.seq}
	s.seq++

	if s.n == 0 {
		return nil
	}
	// A full heap would evict e straight away; skip the push/pop.
	if len(s.heap) == s.n && !s.heap[0].less(e) {
		return nil
	}
	heap.Push(&s.heap, e)
	if len(s.heap) > s.n {
		heap.Pop(&s.heap)
	}
	return nil
}

// OfferAll offers every pair in kcs in order.
func (s *Selector) OfferAll(kcs []KeyCount) error {
	for _, kc := range kcs {
		if err := s.Offer(kc.Key, kc.Count); err != nil {
			return err
		}
	}
	return nil
}

// Len is the number of entries currently retained.
func (s *Selector) Len() int { return len(s.heap) }

// Close drains the heap and returns the entries sorted by count descending,
// earliest arrival first among equal counts. The heap's own layout is never
// used as an ordering.
func (s *Selector) Close() (ResultSet, error) {
	if s.state != stateAccumulating {
		return nil, errors.Wrapf(errors.ErrSelectorClosed, "close while %s", s.state)
	}
	s.state = stateDraining

	drained := make([]rankedEntry, len(s.heap))
	copy(drained, s.heap)
	s.heap = nil
	sort.Slice(drained, func(i, j int) bool {
		return drained[j].less(drained[i])
	})

	rs := make(ResultSet, len(drained))
	for i, e := range drained {
		rs[i] = e.TopEntry
	}
	s.state = stateEmitted
	return rs, nil
}
