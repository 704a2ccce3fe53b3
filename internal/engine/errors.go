package engine

import (
	"errors"
	"fmt"
)

// QueryError represents a failed query.
//
// Every failure of Execute that is attributable to the query or the data it
// names is a QueryError with one of three codes:
//   - InvalidQuery: malformed grammar, unknown or mistyped field, more than
//     one dataset, duplicate APPLY alias, ORDER key outside COLUMNS, or a
//     non-numeric value reaching a numeric aggregate
//   - ResultTooLarge: the filtered set exceeds the result cap
//   - DatasetNotFound: the query's dataset id has no loaded records
//
// Failures are terminal: no partial result accompanies a QueryError.
type QueryError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// QueryID identifies the failed query in logs.
	QueryID string

	// DatasetID is the dataset the query resolved to, when known.
	DatasetID string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes query errors.
type ErrorCode string

const (
	// ErrCodeInvalidQuery indicates the query failed validation or aggregation.
	ErrCodeInvalidQuery ErrorCode = "INVALID_QUERY"

	// ErrCodeResultTooLarge indicates the filtered set exceeded the cap.
	ErrCodeResultTooLarge ErrorCode = "RESULT_TOO_LARGE"

	// ErrCodeDatasetNotFound indicates the dataset id is unknown.
	ErrCodeDatasetNotFound ErrorCode = "DATASET_NOT_FOUND"
)

// Error implements the error interface.
func (e *QueryError) Error() string {
	if e.DatasetID != "" {
		return fmt.Sprintf("%s: %s (dataset=%s)", e.Code, e.Message, e.DatasetID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *QueryError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Code == code
	}
	return false
}

// IsInvalidQuery returns true if the error is an INVALID_QUERY error.
// Uses errors.As to handle wrapped errors.
func IsInvalidQuery(err error) bool {
	return hasCode(err, ErrCodeInvalidQuery)
}

// IsResultTooLarge returns true if the error is a RESULT_TOO_LARGE error.
func IsResultTooLarge(err error) bool {
	return hasCode(err, ErrCodeResultTooLarge)
}

// IsDatasetNotFound returns true if the error is a DATASET_NOT_FOUND error.
func IsDatasetNotFound(err error) bool {
	return hasCode(err, ErrCodeDatasetNotFound)
}

// NewInvalidQueryError wraps a validation or aggregation failure.
func NewInvalidQueryError(queryID, datasetID string, cause error) *QueryError {
	return &QueryError{
		Code:      ErrCodeInvalidQuery,
		Message:   cause.Error(),
		QueryID:   queryID,
		DatasetID: datasetID,
		Err:       cause,
	}
}

// NewResultTooLargeError reports a filtered set larger than limit.
func NewResultTooLargeError(queryID, datasetID string, matched, limit int) *QueryError {
	return &QueryError{
		Code:      ErrCodeResultTooLarge,
		Message:   fmt.Sprintf("query matched %d rows, limit is %d", matched, limit),
		QueryID:   queryID,
		DatasetID: datasetID,
		Details: map[string]string{
			"matched": fmt.Sprintf("%d", matched),
			"limit":   fmt.Sprintf("%d", limit),
		},
	}
}

// NewDatasetNotFoundError reports an unknown dataset id.
func NewDatasetNotFoundError(queryID, datasetID string, cause error) *QueryError {
	return &QueryError{
		Code:      ErrCodeDatasetNotFound,
		Message:   fmt.Sprintf("dataset %q not found", datasetID),
		QueryID:   queryID,
		DatasetID: datasetID,
		Err:       cause,
	}
}
