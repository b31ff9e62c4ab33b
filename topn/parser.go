package topn

import (
	"strings"

	"github.com/teranos/topclients/errors"
)

// Prebuilt so that dropping a malformed record does not capture a stack.
var (
	errEmptyRecord = errors.Wrap(errors.ErrMalformedRecord, "empty record")
	errNoDelimiter = errors.Wrap(errors.ErrMalformedRecord, "no space after client IP")
	errEmptyKey    = errors.Wrap(errors.ErrMalformedRecord, "record starts with a space")
)

// ParseRecord extracts the client IP (everything before the first space)
// from a record and returns it with a count of 1. Records that are empty,
// contain no space, or begin with a space yield an error matching
// errors.ErrMalformedRecord.
func ParseRecord(r Record) (KeyCount, error) {
	if r.Body == "" {
		return KeyCount{}, errEmptyRecord
	}
	idx := strings.IndexByte(r.Body, ' ')
	switch {
	case idx < 0:
		return KeyCount{}, errNoDelimiter
	case idx == 0:
		return KeyCount{}, errEmptyKey
	}
	return KeyCount{Key: r.Body[:idx], Count: 1}, nil
}
