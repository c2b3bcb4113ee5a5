package rpc

import (
	"errors"
	"fmt"
	"net"
)

// AccessDenied is the error message the router uses for a missing or expired session.
const AccessDenied = "Access denied"

var (
	// ErrUnauthorized reports that the router rejected the session token.
	ErrUnauthorized = errors.New("rpc: unauthorized")
	// ErrMalformedResponse reports a body matching neither the success nor the error shape.
	ErrMalformedResponse = errors.New("rpc: malformed response")
	// ErrInvalidID reports a request id that is not a positive integer.
	ErrInvalidID = errors.New("rpc: request id must be positive")
)

// RemoteError is an error reply other than access denied.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc: remote error %d: %s", e.Code, e.Message)
}

// MalformedError carries the reason a response could not be decoded.
type MalformedError struct {
	Err error
}

func (e *MalformedError) Error() string {
	if e.Err == nil {
		return ErrMalformedResponse.Error()
	}
	return fmt.Sprintf("%s: %v", ErrMalformedResponse, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrMalformedResponse) match.
func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// TransportError wraps a network-level failure for one call.
type TransportError struct {
	Method string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rpc: transport failure (%s): %v", e.Method, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a timeout.
func (e *TransportError) Timeout() bool {
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}
