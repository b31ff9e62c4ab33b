package logger

import (
	"context"

	"go.uber.org/zap"
)

// Structured field names shared by every component.
const (
	FieldRunID   = "run_id"
	FieldJobID   = "job_id"
	FieldHandler = "handler"

	FieldOperation  = "operation"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldDurationMS = "duration_ms"
	FieldStartTime  = "start_time"
	FieldEndTime    = "end_time"
	FieldError      = "error"
	FieldCount      = "count"
	FieldBatchSize  = "batch_size"
	FieldAddress    = "address"

	FieldPartition    = "partition"
	FieldPartitions   = "partitions"
	FieldRecords      = "records"
	FieldMalformed    = "malformed"
	FieldDistinctKeys = "distinct_keys"
	FieldTopN         = "top_n"
	FieldResultKey    = "result_key"
)

type ctxField struct{ name string }

var (
	runIDKey = ctxField{FieldRunID}
	jobIDKey = ctxField{FieldJobID}
)

// contextKeys is the order fields appear in FromContext loggers.
var contextKeys = []ctxField{runIDKey, jobIDKey}

// WithRunID tags ctx with a pipeline run.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithJobID tags ctx with the async job executing it.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// FieldsFromContext returns the key/value pairs set on ctx.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}
	for _, k := range contextKeys {
		if v, ok := ctx.Value(k).(string); ok && v != "" {
			fields = append(fields, k.name, v)
		}
	}
	return fields
}

// FromContext attaches ctx fields to base, or to Logger when base is nil.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	if fields := FieldsFromContext(ctx); len(fields) > 0 {
		return base.With(fields...)
	}
	return base
}
