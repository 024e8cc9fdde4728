package apperr

import "errors"

// Error is the domain error type with structured metadata.
type Error struct {
	Code    Code              // Machine-readable error code
	Message string            // Human-readable reason, safe to show to clients
	Fields  map[string]string // Field-level detail for validation errors
	Cause   error             // Wrapped underlying error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a simple domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Invalid creates a validation error carrying per-field messages.
func Invalid(message string, fields map[string]string) *Error {
	return &Error{Code: CodeInvalidArgument, Message: message, Fields: fields}
}

func NotFound(message string) *Error {
	return New(CodeNotFound, message)
}

// CodeOf extracts the code from err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode reports whether err's chain carries code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
