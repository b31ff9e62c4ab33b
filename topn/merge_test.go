package topn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeTopN(t *testing.T) {
	a := ResultSet{{"a1", 9}, {"a2", 4}, {"a3", 1}}
	b := ResultSet{{"b1", 7}, {"b2", 4}}
	c := ResultSet{{"c1", 8}}

	got := MergeTopN(4, a, b, c)
	assert.Equal(t, ResultSet{{"a1", 9}, {"c1", 8}, {"b1", 7}, {"a2", 4}}, got)
}

func TestMergeTopNTiesPreferEarlierList(t *testing.T) {
	got := MergeTopN(3, ResultSet{{"x", 2}}, ResultSet{{"y", 2}}, ResultSet{{"z", 2}})
	assert.Equal(t, ResultSet{{"x", 2}, {"y", 2}, {"z", 2}}, got)
}

func TestMergeTopNEdgeCases(t *testing.T) {
	assert.Equal(t, ResultSet{}, MergeTopN(0, ResultSet{{"a", 1}}))
	assert.Equal(t, ResultSet{}, MergeTopN(5))
	assert.Equal(t, ResultSet{}, MergeTopN(5, nil, ResultSet{}))
	assert.Equal(t, ResultSet{{"a", 1}}, MergeTopN(5, ResultSet{{"a", 1}}))
}
