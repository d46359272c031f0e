package errors

import (
	stdErrors "errors"
	"fmt"
)

// Kind classifies collaboration engine failures
type Kind string

const (
	KindAuthTimeout  Kind = "auth_timeout"
	KindTransport    Kind = "transport_error"
	KindMaxReconnect Kind = "max_reconnect_exceeded"
	KindDecode       Kind = "decode_error"
	KindHandler      Kind = "handler_error"
	KindNotConnected Kind = "not_connected"
	KindValidation   Kind = "validation_error"
	KindUnauthorized Kind = "unauthorized"
)

// CollabError represents an engine error
type CollabError struct {
	Kind    Kind   // Error class
	Message string // Error message
	Err     error  // Original error
}

// Error returns the error message
func (e *CollabError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the original error
func (e *CollabError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a CollabError of the same kind,
// so errors.Is(err, ErrAuthTimeout) works on wrapped values.
func (e *CollabError) Is(target error) bool {
	t, ok := target.(*CollabError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithMessage returns a copy of the CollabError with a custom message
func (e *CollabError) WithMessage(msg string) *CollabError {
	return &CollabError{
		Kind:    e.Kind,
		Message: msg,
		Err:     e.Err,
	}
}

// NewCollabError creates a new engine error
func NewCollabError(kind Kind, message string, err error) *CollabError {
	return &CollabError{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Sentinels for errors.Is
var (
	ErrAuthTimeout          = &CollabError{Kind: KindAuthTimeout, Message: "Authentication timed out"}
	ErrTransport            = &CollabError{Kind: KindTransport, Message: "Transport failure"}
	ErrMaxReconnectExceeded = &CollabError{Kind: KindMaxReconnect, Message: "Maximum reconnect attempts exceeded"}
	ErrDecode               = &CollabError{Kind: KindDecode, Message: "Malformed frame"}
	ErrHandler              = &CollabError{Kind: KindHandler, Message: "Event handler failed"}
	ErrNotConnected         = &CollabError{Kind: KindNotConnected, Message: "Not connected"}
	ErrValidation           = &CollabError{Kind: KindValidation, Message: "Invalid input"}
	ErrUnauthorized         = &CollabError{Kind: KindUnauthorized, Message: "Unauthorized"}
)

// Common error constructors
var (
	AuthTimeout  = func(err error) *CollabError { return NewCollabError(KindAuthTimeout, "Authentication timed out", err) }
	Transport    = func(err error) *CollabError { return NewCollabError(KindTransport, "Transport failure", err) }
	Decode       = func(err error) *CollabError { return NewCollabError(KindDecode, "Malformed frame", err) }
	Handler      = func(err error) *CollabError { return NewCollabError(KindHandler, "Event handler failed", err) }
	Validation   = func(err error) *CollabError { return NewCollabError(KindValidation, "Invalid input", err) }
	NotConnected = func() *CollabError { return NewCollabError(KindNotConnected, "Not connected", nil) }
)

// MaxReconnectExceeded is terminal; it is surfaced once as a connection_failed event.
func MaxReconnectExceeded(attempts int) *CollabError {
	return NewCollabError(KindMaxReconnect, fmt.Sprintf("Gave up after %d reconnect attempts", attempts), nil)
}

// KindOf returns the kind of the first CollabError in err's chain, or "" if there is none
func KindOf(err error) Kind {
	var collabErr *CollabError
	if stdErrors.As(err, &collabErr) {
		return collabErr.Kind
	}
	return ""
}

// Is, As and New mirror the standard library so callers only import one errors package
func Is(err, target error) bool { return stdErrors.Is(err, target) }

func As(err error, target any) bool { return stdErrors.As(err, target) }

func New(text string) error { return stdErrors.New(text) }
