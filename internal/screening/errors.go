package screening

import (
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound means no participant exists for the identifier.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidState means the operation is not allowed in the session's
	// current state, e.g. a response after the test completed.
	ErrInvalidState = errors.New("invalid session state")
	// ErrMalformedState means a persisted session failed to decode or
	// validate.
	ErrMalformedState = errors.New("malformed session state")
	// ErrConflict means another request updated the session first.
	ErrConflict = errors.New("concurrent session update")
)

// StorageError wraps a failure of the session store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedState, fmt.Sprintf(format, args...))
}
