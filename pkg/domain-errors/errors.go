// Package domainerrors defines the coded error type shared by services and
// transports. Services return these; handlers map codes to HTTP status.
package domainerrors

import (
	"errors"
)

// Code classifies a domain error independently of its message.
type Code string

const (
	CodeBadRequest            Code = "bad_request"
	CodeValidation            Code = "validation_error"
	CodeNotFound              Code = "not_found"
	CodeConflict              Code = "conflict"
	CodeUnauthorized          Code = "unauthorized"
	CodeForbidden             Code = "forbidden"
	CodeAccessDenied          Code = "access_denied"
	CodeInvalidOperation      Code = "invalid_operation"
	CodeCrypto                Code = "crypto_error"
	CodeDependencyUnavailable Code = "dependency_unavailable"
	CodeTimeout               Code = "timeout"
	CodeInternal              Code = "internal_error"
)

// Error is a domain error carrying a Code, a client-safe message and an
// optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a domain error without a cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to err. A nil err yields nil.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// As returns the outermost domain error in err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether the outermost domain error in err's chain has code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// Is is an alias of HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the code of err, or CodeInternal for errors that carry none.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}
