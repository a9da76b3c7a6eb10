package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable marks failures where the task's true state is
	// unknown. Callers retry the operation; they never count it against a task.
	ErrStoreUnavailable = errors.New("task store unavailable")

	// ErrTaskNotFound is returned when no row has the requested key.
	ErrTaskNotFound = errors.New("task not found")

	// ErrRunNotFound is returned when no discovery run has the requested ID.
	ErrRunNotFound = errors.New("discovery run not found")

	// ErrStaleTransition is returned when a guarded update matched no row:
	// the task moved on, belongs to another worker, or is terminal.
	ErrStaleTransition = errors.New("stale task transition")

	// ErrInvalidFileKey is returned for empty keys.
	ErrInvalidFileKey = errors.New("invalid file key")

	// ErrInvalidTransition is returned when the caller asks for an edge
	// the status machine does not have.
	ErrInvalidTransition = errors.New("invalid status transition")

	// errClaimConflict means another worker won the row between select and update.
	errClaimConflict = errors.New("claim conflict")
)

// StoreError wraps a database failure with the operation that hit it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("task store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrStoreUnavailable) match every StoreError.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

func wrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsUnavailable reports whether err means the store could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
