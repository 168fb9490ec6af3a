package calendar

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned by operations invoked before a successful Authenticate.
	ErrNotAuthenticated = errors.New("not authenticated with calendar service")
	// ErrNotFound is returned when the backend has no event with the requested id.
	ErrNotFound = errors.New("event not found")
)

// OperationError wraps a backend failure with the operation that produced it.
type OperationError struct {
	Op  string
	ID  string
	Err error
}

func (e *OperationError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("failed to %s event %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("failed to %s event: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// NotFound builds an ErrNotFound carrying the missing id.
func NotFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}
