package errors

import (
	"errors"
	"fmt"
)

// ContextError annotates an error with a short description of the operation
// that produced it. Chains of ContextErrors read outermost-first, e.g.
// "apply plan: fetch: open file".
type ContextError struct {
	Context string
	Err     error
}

func (err ContextError) Error() string {
	return fmt.Sprintf("%s: %s", err.Context, err.Err)
}

func (err ContextError) Unwrap() error {
	return err.Err
}

// New returns an error with the given message.
func New(msg string) error {
	return errors.New(msg)
}

// WithContext wraps err with a short description of the operation that
// failed.
func WithContext(err error, context string) error {
	return ContextError{Context: context, Err: err}
}

// RootCause unwraps err until it finds the innermost error in the chain.
func RootCause(err error) error {
	for {
		wrapped := errors.Unwrap(err)
		if wrapped == nil {
			return err
		}
		err = wrapped
	}
}

// As is errors.As, re-exported so that callers don't need to import both
// this package and the standard library's.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is errors.Is, re-exported for the same reason as As.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// FriendlyError is an error whose message is meant to be shown to the user
// directly, without the usual "ERROR" log decoration.
type FriendlyError struct {
	Message string
}

func (err FriendlyError) Error() string {
	return err.Message
}

// FriendlyMessage returns the message to show the user.
func (err FriendlyError) FriendlyMessage() string {
	return err.Message
}

// NewFriendlyError creates a FriendlyError with a formatted message.
func NewFriendlyError(format string, args ...interface{}) error {
	return FriendlyError{Message: fmt.Sprintf(format, args...)}
}
