package topn

// MergeTopN tree-reduces several top-N lists into one, merging adjacent
// lists pairwise until a single list of at most n entries remains.
//
// The result is exact only when each input was selected from complete
// totals over a key set disjoint from the others, as produced by the
// sharded reducers of a Pipeline with Reducers > 1. Among equal counts the
// entry from the earlier list wins, so ties order by shard index before
// arrival order.
func MergeTopN(n int, lists ...ResultSet) ResultSet {
	if n <= 0 || len(lists) == 0 {
		return ResultSet{}
	}
	level := make([]ResultSet, len(lists))
	copy(level, lists)
	for len(level) > 1 {
		next := make([]ResultSet, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, mergeTwo(n, level[i], level[i+1]))
		}
		level = next
	}
	out := level[0]
	if len(out) > n {
		out = out[:n]
	}
	if out == nil {
		out = ResultSet{}
	}
	return out
}

// mergeTwo merges two descending lists, preferring a on ties.
func mergeTwo(n int, a, b ResultSet) ResultSet {
	size := min(n, len(a)+len(b))
	out := make(ResultSet, 0, size)
	i, j := 0, 0
	for len(out) < size {
		switch {
		case j >= len(b) || (i < len(a) && a[i].Count >= b[j].Count):
			out = append(out, a[i])
			i++
		default:
			out = append(out, b[j])
			j++
		}
	}
	return out
}
