package domain

import (
	"errors"
	"fmt"
)

// ErrNoEvent is returned by a dequeue that timed out with nothing to
// deliver. It is a normal long-poll outcome, not a failure.
var ErrNoEvent = errors.New("no event available")

// ErrQueueClosed is returned when operating on a queue after Close.
var ErrQueueClosed = errors.New("event queue is closed")

// ErrStateNotFound is returned when a user has no stored conversation
// state (the user is idle).
var ErrStateNotFound = errors.New("conversation state not found")

// StorageError marks a transient fault in the backing store (broker
// unreachable, protocol error). The resilience wrapper counts these
// toward tripping the circuit; timeouts and cancellations are not
// storage errors.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err as a storage fault observed during op.
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err is (or wraps) a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
