package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypePermanent  ErrorType = "permanent"
	ErrorTypeStatus     ErrorType = "status"
	ErrorTypeFilesystem ErrorType = "filesystem"
	ErrorTypeDiscovery  ErrorType = "discovery"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// Error represents a download or discovery error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error wrapping err
func New(t ErrorType, message string, err error) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// FromStatus classifies a non-200 HTTP response
func FromStatus(code int) *Error {
	t := ErrorTypeStatus
	if IsPermanentStatus(code) {
		t = ErrorTypePermanent
	}
	return &Error{Type: t, Message: http.StatusText(code), Code: code}
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeStatus:
		return true
	default:
		return false
	}
}

// IsPermanentStatus reports the statuses that abandon a URL without retry
func IsPermanentStatus(statusCode int) bool {
	return statusCode == http.StatusForbidden || statusCode == http.StatusNotFound
}

// TypeOf returns the type of a typed error anywhere in the chain
func TypeOf(err error) ErrorType {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err carries the given type
func Is(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}
