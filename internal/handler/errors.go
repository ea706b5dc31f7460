package handler

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"
)

// ErrHost is wrapped by errors the host reported in a response body.
var ErrHost = errors.New("host error")

// TransportError is returned when an outbound call kept failing after all
// attempts.
type TransportError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HostError is an error the host returned in the response message.
type HostError struct {
	Op  string
	Msg string
}

func (e *HostError) Error() string { return fmt.Sprintf("%s: %s", e.Op, e.Msg) }

func (e *HostError) Unwrap() error { return ErrHost }

// permanent reports whether retrying err cannot succeed.
func permanent(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var herr *HostError
	if errors.As(err, &herr) {
		return true
	}
	switch connect.CodeOf(err) {
	case connect.CodeInvalidArgument, connect.CodeNotFound, connect.CodePermissionDenied,
		connect.CodeUnimplemented, connect.CodeUnauthenticated:
		return true
	}
	return false
}
