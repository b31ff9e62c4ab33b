package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	for _, jsonOutput := range []bool{true, false} {
		zl, err := New(jsonOutput, zapcore.InfoLevel)
		require.NoError(t, err)
		assert.False(t, zl.Core().Enabled(zapcore.DebugLevel), "json=%v", jsonOutput)
		assert.True(t, zl.Core().Enabled(zapcore.InfoLevel), "json=%v", jsonOutput)
	}
}

func TestInitializeWithVerbosity(t *testing.T) {
	saved := Logger
	defer func() { Logger = saved }()

	require.NoError(t, InitializeWithVerbosity(false, VerbosityDebug))
	assert.True(t, Logger.Desugar().Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, InitializeWithVerbosity(true, VerbosityQuiet))
	assert.False(t, Logger.Desugar().Core().Enabled(zapcore.InfoLevel))
}

func TestVerbosityToLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		want      zapcore.Level
	}{
		{-1, zapcore.WarnLevel},
		{0, zapcore.WarnLevel},
		{1, zapcore.InfoLevel},
		{2, zapcore.DebugLevel},
		{5, zapcore.DebugLevel},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, VerbosityToLevel(tt.verbosity), "verbosity %d", tt.verbosity)
	}
}

func TestFieldsFromContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, FieldsFromContext(ctx))

	ctx = WithRunID(ctx, "run-1")
	ctx = WithJobID(ctx, "job-1")

	fields := FieldsFromContext(ctx)
	assert.Equal(t, []interface{}{
		FieldRunID, "run-1",
		FieldJobID, "job-1",
	}, fields)
}

func TestFromContextAttachesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core).Sugar()

	ctx := WithRunID(context.Background(), "run-42")
	FromContext(ctx, base).Infow("run finished", FieldCount, 3)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "run-42", fields[FieldRunID])
	assert.EqualValues(t, 3, fields[FieldCount])
}

func TestPackageHelpersSurviveNilLogger(t *testing.T) {
	saved := Logger
	defer func() { Logger = saved }()

	Logger = nil
	assert.NotPanics(t, func() {
		Infow("a")
		Warnw("b")
		Errorw("c")
		Debugw("d")
		Cleanup()
	})
}
