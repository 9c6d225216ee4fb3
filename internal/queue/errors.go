package queue

import "errors"

var (
	// ErrNotFound is returned when a command does not exist or the caller no
	// longer holds its lease.
	ErrNotFound = errors.New("queued command not found")
	// ErrUnknownCommand is recorded when no handler is registered for a type.
	ErrUnknownCommand = errors.New("no handler registered for command type")
)

type permanentError struct {
	cause error
}

func (e permanentError) Error() string {
	if e.cause == nil {
		return "permanent error"
	}
	return e.cause.Error()
}

func (e permanentError) Unwrap() error {
	return e.cause
}

// Permanent marks an error as non-retryable. The worker dead-letters the
// command instead of scheduling another attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{cause: err}
}

// IsPermanent reports whether err was explicitly marked as non-retryable.
func IsPermanent(err error) bool {
	var target permanentError
	return errors.As(err, &target)
}
