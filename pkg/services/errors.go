package services

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the service layer. The API layer maps
// these onto HTTP status codes; the turn executor branches on the lease
// errors.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidInput  = errors.New("invalid input")

	// ErrCaseClosed rejects operations on a case that has been closed.
	ErrCaseClosed = errors.New("case is closed")

	// ErrNotCloseable rejects closing a case that has not reached
	// DOCUMENTING or RESOLVED.
	ErrNotCloseable = errors.New("case is not in a closeable status")

	// ErrWrongStatus means a lifecycle operation found the case in a
	// status it cannot act on.
	ErrWrongStatus = errors.New("case is in the wrong status for this operation")

	// ErrLeaseHeld means the case lease is live under another worker.
	ErrLeaseHeld = errors.New("case lease held by another worker")

	// ErrLeaseLost means a fenced write found the lease expired or taken
	// over; none of the turn's writes were committed.
	ErrLeaseLost = errors.New("case lease lost")
)

// ValidationError carries the offending field alongside the message.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
