// Package topn computes the N most frequent client IPs in a window of
// access-log records.
//
// A run is a one-shot map/combine/reduce pass:
//
//	Record -> ParseRecord -> LocalAggregator (one per partition)
//	       -> Shuffle by key -> GlobalAggregator -> Selector -> Sink
//
// Parsing and local aggregation run in parallel across partitions with no
// shared state. Shuffling waits for every partition (a barrier); global
// aggregation and selection happen in one logical instance per reducer
// shard. A run either writes exactly one ResultSet or fails without writing.
package topn
