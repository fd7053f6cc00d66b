package queue

import "errors"

var (
	// ErrNotFound indicates no row exists with the requested id.
	ErrNotFound = errors.New("queue row not found")
	// ErrValidation indicates the request would break a row invariant.
	ErrValidation = errors.New("invalid queue request")
	// ErrInvalidTransition indicates the row's current status forbids the write.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrSchemaMismatch indicates the table is missing expected columns.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrUnsupportedDriver indicates the configured store driver is unknown.
	ErrUnsupportedDriver = errors.New("unsupported store driver")
)
