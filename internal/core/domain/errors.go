package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent indexing pipeline failures.
// Adapters wrap their infrastructure errors with one of these so that
// services can classify failures with errors.Is.
var (
	// ErrNotFound indicates a record or remote document does not exist.
	// It is treated as a skip, never as a failure.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfiguration indicates missing credentials or application id.
	// Fatal before any indexing work starts.
	ErrConfiguration = errors.New("configuration error")

	// ErrRemoteUnavailable indicates the search service could not be reached.
	ErrRemoteUnavailable = errors.New("remote index unavailable")

	// ErrRemoteRejected indicates the search service refused the request
	// (quota, validation, oversized record).
	ErrRemoteRejected = errors.New("remote index rejected request")

	// ErrExtraction indicates a record could not be projected into a document.
	ErrExtraction = errors.New("extraction failed")

	// ErrNotIndexed indicates a removal was requested for a record that
	// never received a search identity.
	ErrNotIndexed = errors.New("record not indexed")

	// ErrIndexingDisabled indicates the record's class is not indexed.
	ErrIndexingDisabled = errors.New("indexing disabled for class")

	// ErrIncompatibleCursor indicates a persisted reindex cursor was written
	// by an incompatible version and must be discarded.
	ErrIncompatibleCursor = errors.New("incompatible reindex cursor")

	// ErrUnknownClass indicates a class name absent from the class registry.
	ErrUnknownClass = errors.New("unknown class")
)

// FieldError records why a single configured field was left out of a document.
type FieldError struct {
	Field string
	Err   error
}

// Error implements the error interface.
func (e FieldError) Error() string {
	return fmt.Sprintf("field %s: %v", e.Field, e.Err)
}

// Unwrap returns the underlying error.
func (e FieldError) Unwrap() error {
	return e.Err
}

// IsRemote reports whether err originated from the remote search service.
func IsRemote(err error) bool {
	return errors.Is(err, ErrRemoteUnavailable) || errors.Is(err, ErrRemoteRejected)
}
