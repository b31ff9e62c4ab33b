// Package logger holds the process-wide zap logger and the field names
// topclients logs with. Components take a *zap.SugaredLogger at
// construction and fall back to Logger when given nil.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a no-op until InitializeWithVerbosity runs.
var Logger = zap.NewNop().Sugar()

// New builds a JSON production logger or a colored console logger on stderr.
func New(jsonOutput bool, level zapcore.Level) (*zap.Logger, error) {
	if jsonOutput {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		return cfg.Build()
	}

	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), level)
	return zap.New(core), nil
}

// InitializeWithVerbosity replaces Logger using a CLI -v count.
func InitializeWithVerbosity(jsonOutput bool, verbosity int) error {
	zl, err := New(jsonOutput, VerbosityToLevel(verbosity))
	if err != nil {
		return err
	}
	Logger = zl.Sugar()
	return nil
}

// Cleanup flushes buffered entries.
func Cleanup() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

func Infow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Infow(msg, keysAndValues...)
	}
}

func Errorw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Errorw(msg, keysAndValues...)
	}
}

func Warnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Warnw(msg, keysAndValues...)
	}
}

func Debugw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Debugw(msg, keysAndValues...)
	}
}
