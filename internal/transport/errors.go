package transport

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by ReadFrame and WriteFrame after Close.
var ErrClosed = errors.New("transport is closed")

// ConnectError reports an exhausted liveness probe sequence.
type ConnectError struct {
	Attempts int
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// WriteError reports a single failed frame write. Status is set when the
// device rejected the request, Err when the request itself failed.
type WriteError struct {
	Status int
	Err    error
}

func (e *WriteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("write rejected with status %d", e.Status)
	}

	return fmt.Sprintf("write failed: %v", e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// ReadError reports a failed poll request. Status is set when the device
// answered with a non-2xx code, Err when the request failed on the wire.
type ReadError struct {
	Status int
	Err    error
}

func (e *ReadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("poll rejected with status %d", e.Status)
	}

	return fmt.Sprintf("poll failed: %v", e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// TimeoutError reports a poll request that exceeded its per-request bound.
// Kept separate from ReadError so consumers can tell a slow device from an
// unreachable one.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("poll timed out: %v", e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}
