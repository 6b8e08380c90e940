package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionActive is returned when a connect request arrives while a session is still live.
	ErrSessionActive = errors.New("assistant session already active")

	// ErrNoSession is returned by operations that need a live session.
	ErrNoSession = errors.New("no active assistant session")

	// ErrRemoteClosed signals that the remote side ended the session.
	ErrRemoteClosed = errors.New("remote closed the session")

	// ErrSchedulerClosed is returned when audio is scheduled after teardown.
	ErrSchedulerClosed = errors.New("playback scheduler closed")
)

// PermissionError reports that a capture device could not be acquired.
type PermissionError struct {
	Device string
	Err    error
}

func NewPermissionError(device string, err error) *PermissionError {
	return &PermissionError{Device: device, Err: err}
}

func (e *PermissionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s permission denied", e.Device)
	}
	return fmt.Sprintf("%s permission denied: %v", e.Device, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// TransportError reports an open, send or receive failure on the remote session.
type TransportError struct {
	Op  string
	Err error
}

func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError reports a malformed or truncated audio fragment.
type DecodeError struct {
	Reason string
	Err    error
}

func NewDecodeError(reason string, err error) *DecodeError {
	return &DecodeError{Reason: reason, Err: err}
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return "malformed audio: " + e.Reason
	}
	return fmt.Sprintf("malformed audio: %s: %v", e.Reason, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// QueryError reports a failed read against the store.
type QueryError struct {
	Query string
	Err   error
}

func NewQueryError(query string, err error) *QueryError {
	return &QueryError{Query: query, Err: err}
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("store query %s failed: %v", e.Query, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// ConfigurationError reports a missing or invalid setting.
type ConfigurationError struct {
	Key     string
	Message string
}

func NewConfigurationError(key, message string) *ConfigurationError {
	return &ConfigurationError{Key: key, Message: message}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %s", e.Key, e.Message)
}
