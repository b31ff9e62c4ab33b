package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestWrapf(t *testing.T) {
	wrapped := Wrapf(ErrPartitionFailure, "partition %d", 3)

	assert.Equal(t, "partition 3: partition failure", wrapped.Error())
	assert.True(t, Is(wrapped, ErrPartitionFailure))
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrMalformedRecord,
		ErrPartitionFailure,
		ErrSinkWrite,
		ErrSelectorClosed,
		ErrNotFound,
		ErrInvalidRequest,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.False(t, Is(a, b), "%v must not match %v", a, b)
		}
	}
}

func TestMarkKeepsCauseAndCategory(t *testing.T) {
	cause := New("disk full")
	err := Mark(Wrap(cause, "write snapshot"), ErrSinkWrite)

	assert.True(t, Is(err, ErrSinkWrite))
	assert.True(t, Is(err, cause))
	assert.Contains(t, err.Error(), "disk full")
}

func TestIsNotFoundError(t *testing.T) {
	assert.False(t, IsNotFoundError(nil))
	assert.False(t, IsNotFoundError(New("other")))
	assert.True(t, IsNotFoundError(ErrNotFound))
	assert.True(t, IsNotFoundError(NewNotFoundError("result %s", "topN.clientIPs")))
}

func TestNewInvalidRequestError(t *testing.T) {
	err := NewInvalidRequestError("n must be >= 0, got %d", -1)

	require.Error(t, err)
	assert.True(t, IsInvalidRequestError(err))
	assert.Contains(t, err.Error(), "got -1")
}

func TestWithDetail(t *testing.T) {
	err := WithDetail(Wrap(ErrPartitionFailure, "run"), "partition: rows 1-100")

	details := GetAllDetails(err)
	require.Len(t, details, 1)
	assert.Equal(t, "partition: rows 1-100", details[0])
}

func TestStackTrace(t *testing.T) {
	err := New("with stack")

	assert.NotNil(t, GetStack(err))
	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, "errors_test.go")
}
