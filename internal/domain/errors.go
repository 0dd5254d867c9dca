package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks bad client input. Use NewValidationError to attach a message.
	ErrValidation = errors.New("validation error")
	// ErrNotFound is returned when no todo has the requested id.
	ErrNotFound = errors.New("todo not found")
	// ErrStoreUnavailable is returned when the database is not configured or cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrStorageTimeout is returned when a database or storage call exceeds its deadline.
	ErrStorageTimeout = errors.New("storage timeout")
)

// ValidationError carries a client-facing message and matches ErrValidation.
type ValidationError struct {
	Message string
}

func NewValidationError(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
