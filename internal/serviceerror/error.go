// Package serviceerror carries stable operation.reason codes alongside the underlying cause.
package serviceerror

import (
	"errors"
	"fmt"
)

// Error is returned by the storage services. Code is stable; the wrapped cause is not.
type Error struct {
	code string
	err  error
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the operation.reason identifier.
func (e *Error) Code() string {
	return e.code
}

// New builds an Error with the code "<operation>.<reason>".
func New(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &Error{code: code, err: cause}
}

// CodeOf extracts the code from err when it wraps an *Error.
func CodeOf(err error) (string, bool) {
	var serviceErr *Error
	if errors.As(err, &serviceErr) {
		return serviceErr.Code(), true
	}
	return "", false
}
