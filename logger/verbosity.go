package logger

import "go.uber.org/zap/zapcore"

// -v counts. Without flags only warnings and errors reach stderr, so
// command output stays clean.
const (
	VerbosityQuiet = 0
	VerbosityInfo  = 1 // run progress, server startup
	VerbosityDebug = 2 // per-partition detail, migrations, batches
)

func VerbosityToLevel(verbosity int) zapcore.Level {
	switch {
	case verbosity >= VerbosityDebug:
		return zapcore.DebugLevel
	case verbosity == VerbosityInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.WarnLevel
	}
}
