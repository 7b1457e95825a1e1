// Package ovterrors defines the stable error taxonomy shared by every
// OpenViking component, collapsed into a single error type rather than an
// HTTP-only struct.
package ovterrors

import (
	"errors"
	"fmt"
)

// Code is a stable, wire-visible error classification. Every component
// (VikingFS, vector drivers, the tenant manager, the retriever) returns
// errors wrapping one of these codes; the HTTP surface maps Code to status
// via a single table (see internal/api/rest/errors.go).
type Code string

const (
	NotFound        Code = "NotFound"
	AlreadyExists   Code = "AlreadyExists"
	InvalidArgument Code = "InvalidArgument"
	PermissionDenied Code = "PermissionDenied"
	Unauthenticated Code = "Unauthenticated"
	NotInitialized  Code = "NotInitialized"
	Timeout         Code = "Timeout"
	Internal        Code = "Internal"
)

// Error is the single error type returned by every OpenViking core
// component. It carries a stable Code plus a human-readable Message and an
// optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs an *Error with the given code and formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an existing error without losing it.
func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf extracts the Code from err, defaulting to Internal if err does not
// wrap an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// Is reports whether err wraps the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

func NotFoundf(format string, args ...interface{}) *Error {
	return New(NotFound, format, args...)
}

func AlreadyExistsf(format string, args ...interface{}) *Error {
	return New(AlreadyExists, format, args...)
}

func InvalidArgumentf(format string, args ...interface{}) *Error {
	return New(InvalidArgument, format, args...)
}

func PermissionDeniedf(format string, args ...interface{}) *Error {
	return New(PermissionDenied, format, args...)
}

func Unauthenticatedf(format string, args ...interface{}) *Error {
	return New(Unauthenticated, format, args...)
}

func NotInitializedf(format string, args ...interface{}) *Error {
	return New(NotInitialized, format, args...)
}

func Timeoutf(format string, args ...interface{}) *Error {
	return New(Timeout, format, args...)
}

func Internalf(format string, args ...interface{}) *Error {
	return New(Internal, format, args...)
}
