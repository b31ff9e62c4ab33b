package async

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/topclients/errors"
)

type funcHandler struct {
	name string
	fn   func(ctx context.Context, job *Job) error
}

func (h *funcHandler) Name() string { return h.name }

func (h *funcHandler) Execute(ctx context.Context, job *Job) error { return h.fn(ctx, job) }

func TestHandlerRegistry(t *testing.T) {
	r := NewHandlerRegistry()
	called := false
	r.Register(&funcHandler{name: "b", fn: func(context.Context, *Job) error { called = true; return nil }})
	r.Register(&funcHandler{name: "a", fn: func(context.Context, *Job) error { return nil }})

	h, ok := r.Lookup("a")
	assert.True(t, ok)
	assert.Equal(t, "a", h.Name())
	_, ok = r.Lookup("c")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "b"}, r.Names())

	require.NoError(t, r.Execute(context.Background(), &Job{ID: "1", HandlerName: "b"}))
	assert.True(t, called)

	assert.Panics(t, func() {
		r.Register(&funcHandler{name: "a"})
	})
}

func TestHandlerRegistryUnroutable(t *testing.T) {
	r := NewHandlerRegistry()

	err := r.Execute(context.Background(), &Job{ID: "1"})
	assert.True(t, errors.IsInvalidRequestError(err))

	err = r.Execute(context.Background(), &Job{ID: "1", HandlerName: "nope"})
	assert.True(t, errors.IsInvalidRequestError(err))
	assert.Contains(t, err.Error(), "nope")
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      ErrorCode
		retryable bool
	}{
		{"partition", errors.Mark(errors.New("read"), errors.ErrPartitionFailure), ErrorCodePartitionFailure, true},
		{"sink", errors.Wrap(errors.ErrSinkWrite, "put"), ErrorCodeSinkWrite, true},
		{"busy", errors.New("database is locked"), ErrorCodeDatabaseBusy, true},
		{"deadline", errors.Wrap(context.DeadlineExceeded, "run"), ErrorCodeTimeout, true},
		{"invalid", errors.NewInvalidRequestError("n must be >= 0"), ErrorCodeValidationError, false},
		{"unknown", errors.New("???"), ErrorCodeUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := ClassifyError(tt.err)
			assert.Equal(t, tt.code, ec.Code)
			assert.Equal(t, tt.retryable, ec.Retryable)
		})
	}
}
