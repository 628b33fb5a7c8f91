package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrForbidden marks an authenticated caller acting on something it does not own.
	ErrForbidden = errors.New("forbidden")
	// ErrUnknownKind is returned for a generation kind with no registered task.
	ErrUnknownKind = errors.New("unknown generation kind")
)
