package mml

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrProtocolTimeout indicates that a response did not contain a recognisable RETCODE line, typically because
	// the read timed out before the device completed its response.
	ErrProtocolTimeout = errors.New("no return code in response")

	// ErrInvalidEncoding indicates that a command or response contained bytes outside the 7-bit ASCII range.
	ErrInvalidEncoding = errors.New("invalid encoding, expecting 7-bit ascii")

	// ErrSessionClosed is the cause of connection errors returned by a session that has been closed or has failed.
	ErrSessionClosed = errors.New("session closed")

	// ErrUnknownPlaceholder is returned when a scripted command references a placeholder that cannot be resolved.
	ErrUnknownPlaceholder = errors.New("unknown placeholder")
)

// ConnectionError reports a transport level failure: refused, reset or closed connections.
type ConnectionError struct {
	Op     string
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Cause supports github.com/pkg/errors.Cause.
func (e *ConnectionError) Cause() error { return e.Err }

// DeviceError reports a well formed, non-zero return code received from the network element.
type DeviceError struct {
	Command string
	Code    ReturnCode
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("command %q failed with RETCODE = %d", e.Command, e.Code)
}

// IsConnectionError reports whether err was caused by a transport failure.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// IsProtocolTimeout reports whether err was caused by a response without a return code.
func IsProtocolTimeout(err error) bool {
	return errors.Is(err, ErrProtocolTimeout)
}

// IsDeviceError reports whether err carries a non-zero return code reported by the device.
func IsDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}

func newConnectionError(op, target string, err error) error {
	if err == nil {
		return nil
	}
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return err
	}
	return &ConnectionError{Op: op, Target: target, Err: err}
}
