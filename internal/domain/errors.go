package domain

import "errors"

var (
	// ErrValidation marks malformed input; callers wrap it with context.
	ErrValidation = errors.New("validation error")

	// ErrInvalidDueDate marks a due date that cannot be parsed into
	// day/month/year components.
	ErrInvalidDueDate = errors.New("invalid due date")

	// ErrNotFound marks a missing record.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks an operation rejected because of current state.
	ErrConflict = errors.New("conflict")

	// ErrRunInProgress is returned when a dispatch run is requested while
	// another run holds the lock.
	ErrRunInProgress = errors.New("dispatch run already in progress")
)
