package topn

import "hash/fnv"

// counter sums counts per key and remembers the order in which keys were
// first seen, which is what makes tie-breaking deterministic downstream.
type counter struct {
	counts map[string]int64
	order  []string
}

func newCounter() counter {
	return counter{counts: make(map[string]int64)}
}

func (c *counter) add(kc KeyCount) {
	if _, seen := c.counts[kc.Key]; !seen {
		c.order = append(c.order, kc.Key)
	}
	c.counts[kc.Key] += kc.Count
}

func (c *counter) emit() []KeyCount {
	out := make([]KeyCount, len(c.order))
	for i, k := range c.order {
		out[i] = KeyCount{Key: k, Count: c.counts[k]}
	}
	return out
}

// LocalAggregator is the combiner: it sums counts per key inside a single
// partition to shrink what crosses the shuffle. It is owned by one worker
// and discarded after its partition is done.
type LocalAggregator struct {
	c counter
}

// NewLocalAggregator returns an empty combiner.
func NewLocalAggregator() *LocalAggregator {
	return &LocalAggregator{c: newCounter()}
}

// Add folds one pair into the partition's partial sums.
func (a *LocalAggregator) Add(kc KeyCount) { a.c.add(kc) }

// Partials returns one pair per key with its partial sum, in first-seen order.
func (a *LocalAggregator) Partials() []KeyCount { return a.c.emit() }

// Len is the number of distinct keys seen in the partition.
func (a *LocalAggregator) Len() int { return len(a.c.order) }

// GlobalAggregator is the reducer: it merges partial sums from every
// partition into one total per key. All pairs for a key must reach the same
// GlobalAggregator; Shuffle guarantees that within a run.
type GlobalAggregator struct {
	c counter
}

// NewGlobalAggregator returns an empty reducer.
func NewGlobalAggregator() *GlobalAggregator {
	return &GlobalAggregator{c: newCounter()}
}

// Merge adds a partial sum for a key.
func (g *GlobalAggregator) Merge(kc KeyCount) { g.c.add(kc) }

// MergeAll adds every pair in kcs.
func (g *GlobalAggregator) MergeAll(kcs []KeyCount) {
	for _, kc := range kcs {
		g.c.add(kc)
	}
}

// Totals returns one pair per key with its total, in first-seen order.
func (g *GlobalAggregator) Totals() []KeyCount { return g.c.emit() }

// Len is the number of distinct keys merged so far.
func (g *GlobalAggregator) Len() int { return len(g.c.order) }

// Shuffle routes the per-partition outputs to reducers buckets so that every
// pair for a key lands in the same bucket. Order is preserved: partitions in
// the order given, pairs in the order each partition emitted them.
func Shuffle(partitions [][]KeyCount, reducers int) [][]KeyCount {
	if reducers < 1 {
		reducers = 1
	}
	buckets := make([][]KeyCount, reducers)
	for _, pairs := range partitions {
		for _, kc := range pairs {
			b := ReducerFor(kc.Key, reducers)
			buckets[b] = append(buckets[b], kc)
		}
	}
	return buckets
}

// ReducerFor returns the bucket a key is routed to.
func ReducerFor(key string, reducers int) int {
	if reducers <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(reducers))
}
