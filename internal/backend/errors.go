package backend

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnsupportedOperation reports that the endpoint does not implement the
// requested NDC transaction.
var ErrUnsupportedOperation = errors.New("backend: operation not supported by endpoint")

// Error describes a failed NDC transaction. Temporary failures (transport
// flaps, gateway 5xx) may be retried by a future caller; the gateway itself
// does not retry.
type Error struct {
	Operation string
	Message   string
	Temporary bool
	status    int
	cause     error
}

// Status returns the HTTP status reported by the endpoint, when known.
func (e *Error) Status() int {
	if e == nil {
		return 0
	}
	return e.status
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("backend %s: %s: %v", e.Operation, e.Message, e.cause)
	}
	return fmt.Sprintf("backend %s: %s", e.Operation, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// NewError builds a backend error for the named operation.
func NewError(operation, message string, temporary bool, cause error) *Error {
	return &Error{Operation: operation, Message: message, Temporary: temporary, cause: cause}
}

// IsTimeout reports whether the error is a deadline expiry, either from the
// call context or wrapped inside a backend error.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
