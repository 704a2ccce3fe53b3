package ingest

import (
	"errors"
	"fmt"

	"github.com/roach88/insight/internal/schema"
)

// ErrNoValidRecords is wrapped by *Error when a dataset yields no record.
var ErrNoValidRecords = errors.New("no valid records")

// Error reports a dataset file that cannot be ingested.
type Error struct {
	Kind   schema.Kind
	Source string // file path, or archive member name
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("ingest %s %s: %s", e.Kind, e.Source, e.Reason)
	if e.Err != nil && e.Err.Error() != e.Reason {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}
