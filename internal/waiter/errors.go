package waiter

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenMismatch is returned when a signal names a token that has no
	// pending call.
	ErrTokenMismatch = errors.New("token mismatch")
	// ErrTokenInUse is returned when a live token is registered again.
	ErrTokenInUse = errors.New("token already pending")
	// ErrAlreadyExecuted is returned by a second Execute for the same token.
	ErrAlreadyExecuted = errors.New("pending call already executed")
	// ErrClosed is delivered to every waiter when the router shuts down.
	ErrClosed = errors.New("waiter closed")
)

// ActivityExecutionError wraps the error raised by the call itself.
type ActivityExecutionError struct {
	Token string
	Name  string
	Err   error
}

func (e *ActivityExecutionError) Error() string {
	return fmt.Sprintf("activity %s (%s): %v", e.Name, e.Token, e.Err)
}

func (e *ActivityExecutionError) Unwrap() error { return e.Err }
