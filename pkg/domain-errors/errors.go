// Package domainerrors defines the closed error taxonomy for siteledger.
//
// Services return *Error values carrying a Code from the set below. Stores
// return pkg/platform/sentinel errors; services translate them here so the
// HTTP layer only ever sees coded domain errors.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure. The set is closed: handlers map every
// code to an HTTP status, so adding a code means updating that mapping.
type Code string

const (
	CodeValidation         Code = "validation"
	CodeBadRequest         Code = "bad_request"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"
	CodeForbidden          Code = "forbidden"
	CodeUnauthorized       Code = "unauthorized"
	CodeInternal           Code = "internal"
	CodeTimeout            Code = "timeout"
)

// Error is a coded domain error. Message is safe to show to an end user.
// Details carries structured context (e.g. the current ownership total that
// an attempted write would have exceeded) so callers can format or localize
// their own messages instead of parsing ours.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with the given code and user-facing message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates an underlying error with a code and message. The cause is
// preserved for errors.Is/As chains but never rendered to API clients.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// WithDetail attaches a structured context value and returns the error for
// chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any, 2)
	}
	e.Details[key] = value
	return e
}

// HasCode reports whether err (or anything it wraps) is a domain error with
// the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is reports whether err is a domain error of any code.
func Is(err error) bool {
	var de *Error
	return errors.As(err, &de)
}

// CodeOf returns the code carried by err, or CodeInternal when err is not a
// domain error. Useful at the transport boundary where every failure must
// map to a status.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
