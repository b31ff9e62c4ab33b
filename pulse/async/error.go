package async

import (
	"context"

	"github.com/teranos/topclients/db"
	"github.com/teranos/topclients/errors"
)

// ErrorCode represents the classification of a job failure
type ErrorCode string

const (
	ErrorCodePartitionFailure ErrorCode = "partition_failure"
	ErrorCodeSinkWrite        ErrorCode = "sink_write"
	ErrorCodeDatabaseBusy     ErrorCode = "database_busy"
	ErrorCodeValidationError  ErrorCode = "validation_error"
	ErrorCodeTimeout          ErrorCode = "timeout"
	ErrorCodeUnknown          ErrorCode = "unknown"
)

// ErrorContext provides structured error information for job failures
type ErrorContext struct {
	Code      ErrorCode
	Message   string
	Retryable bool
}

// ClassifyError decides whether a failed job is worth another attempt.
// Failed partitions and rejected sink writes are transient by nature and
// the run is idempotent, so both are retried. Bad requests never are.
func ClassifyError(err error) ErrorContext {
	if err == nil {
		return ErrorContext{Code: ErrorCodeUnknown, Message: "unknown error"}
	}

	ec := ErrorContext{Message: err.Error()}
	switch {
	case errors.IsInvalidRequestError(err):
		ec.Code = ErrorCodeValidationError
	case errors.Is(err, context.DeadlineExceeded):
		ec.Code = ErrorCodeTimeout
		ec.Retryable = true
	case errors.Is(err, errors.ErrSinkWrite):
		ec.Code = ErrorCodeSinkWrite
		ec.Retryable = true
	case errors.Is(err, errors.ErrPartitionFailure):
		ec.Code = ErrorCodePartitionFailure
		ec.Retryable = true
	case db.IsBusy(err):
		ec.Code = ErrorCodeDatabaseBusy
		ec.Retryable = true
	default:
		ec.Code = ErrorCodeUnknown
	}
	return ec
}
