package topn

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/topclients/errors"
)

func TestSelectorKeepsLargestSortedDescending(t *testing.T) {
	sel := NewSelector(3)
	require.NoError(t, sel.OfferAll([]KeyCount{
		{"a", 5}, {"b", 1}, {"c", 9}, {"d", 7}, {"e", 2}, {"f", 8},
	}))
	assert.Equal(t, 3, sel.Len())

	rs, err := sel.Close()
	require.NoError(t, err)
	assert.Equal(t, ResultSet{{"c", 9}, {"f", 8}, {"d", 7}}, rs)
}

func TestSelectorTieBreakFirstSeenWins(t *testing.T) {
	sel := NewSelector(3)
	require.NoError(t, sel.OfferAll([]KeyCount{
		{"small", 1}, {"first", 4}, {"second", 4}, {"third", 4}, {"fourth", 4}, {"big", 6},
	}))

	rs, err := sel.Close()
	require.NoError(t, err)
	assert.Equal(t, ResultSet{{"big", 6}, {"first", 4}, {"second", 4}}, rs)
}

func TestSelectorZeroN(t *testing.T) {
	sel := NewSelector(0)
	require.NoError(t, sel.Offer("a", 10))

	rs, err := sel.Close()
	require.NoError(t, err)
	assert.NotNil(t, rs)
	assert.Empty(t, rs)
}

func TestSelectorNegativeNBehavesAsZero(t *testing.T) {
	sel := NewSelector(-3)
	require.NoError(t, sel.Offer("a", 1))
	rs, err := sel.Close()
	require.NoError(t, err)
	assert.Empty(t, rs)
}

func TestSelectorNLargerThanInput(t *testing.T) {
	sel := NewSelector(100)
	require.NoError(t, sel.OfferAll([]KeyCount{{"a", 1}, {"b", 3}, {"c", 2}}))

	rs, err := sel.Close()
	require.NoError(t, err)
	assert.Equal(t, ResultSet{{"b", 3}, {"c", 2}, {"a", 1}}, rs)
}

func TestSelectorIsSingleUse(t *testing.T) {
	sel := NewSelector(2)
	require.NoError(t, sel.Offer("a", 1))
	_, err := sel.Close()
	require.NoError(t, err)

	err = sel.Offer("b", 2)
	assert.True(t, errors.Is(err, errors.ErrSelectorClosed))

	_, err = sel.Close()
	assert.True(t, errors.Is(err, errors.ErrSelectorClosed))
}

// The drained order must come from the explicit sort, not the heap layout.
func TestSelectorMatchesReferenceSort(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 100; trial++ {
		n := rng.Intn(12)
		var offered []KeyCount
		for i := 0; i < rng.Intn(60); i++ {
			offered = append(offered, KeyCount{Key: fmt.Sprintf("k%d", i), Count: int64(rng.Intn(6))})
		}

		sel := NewSelector(n)
		require.NoError(t, sel.OfferAll(offered))
		got, err := sel.Close()
		require.NoError(t, err)

		want := referenceTopN(offered, n)
		assert.Equal(t, want, got, "trial %d n=%d", trial, n)
	}
}

// referenceTopN sorts everything stably by count descending and truncates.
func referenceTopN(kcs []KeyCount, n int) ResultSet {
	all := make(ResultSet, len(kcs))
	for i, kc := range kcs {
		all[i] = TopEntry{Key: kc.Key, Count: kc.Count}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Count > all[j].Count })
	if len(all) > n {
		all = all[:n]
	}
	return all
}
