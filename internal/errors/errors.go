// Package errors defines the typed error taxonomy shared by the service
// client, the Telegram client, the HTTP API and the background poller.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes. They double as the error_type field in API responses.
const (
	CodeUnknownService  = "UNKNOWN_SERVICE"
	CodeTimeout         = "TIMEOUT"
	CodeConnectionError = "CONNECTION_ERROR"
	CodeInvalidToken    = "INVALID_TOKEN"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeValidation      = "VALIDATION"
	CodeInternal        = "INTERNAL"
)

// Sentinels for errors.Is. Any *Error with the same code matches.
var (
	ErrUnknownService = &Error{code: CodeUnknownService, message: "unknown service"}
	ErrTimeout        = &Error{code: CodeTimeout, message: "timeout"}
	ErrConnection     = &Error{code: CodeConnectionError, message: "connection error"}
	ErrInvalidToken   = &Error{code: CodeInvalidToken, message: "invalid bot token"}
	ErrNotFound       = &Error{code: CodeNotFound, message: "not found"}
	ErrConflict       = &Error{code: CodeConflict, message: "conflict"}
	ErrValidation     = &Error{code: CodeValidation, message: "validation failed"}
	ErrInternal       = &Error{code: CodeInternal, message: "internal error"}
)

// ApplicationError is the interface that all our custom errors implement.
type ApplicationError interface {
	error
	Code() string
	Unwrap() error
}

// Error is a coded application error with an optional cause.
type Error struct {
	code    string
	message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}
	return e.message
}

func (e *Error) Code() string {
	return e.code
}

func (e *Error) Unwrap() error {
	return e.err
}

// Message returns the message without the cause.
func (e *Error) Message() string {
	return e.message
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.code == e.code
}

// New creates an error with the given code.
func New(code, message string, cause error) error {
	return &Error{code: code, message: message, err: cause}
}

func NewUnknownService(name string) error {
	return &Error{code: CodeUnknownService, message: fmt.Sprintf("unknown service %q", name)}
}

func NewTimeout(message string, cause error) error {
	return &Error{code: CodeTimeout, message: message, err: cause}
}

func NewConnectionError(message string, cause error) error {
	return &Error{code: CodeConnectionError, message: message, err: cause}
}

func NewInvalidToken(message string, cause error) error {
	return &Error{code: CodeInvalidToken, message: message, err: cause}
}

func NewNotFound(message string) error {
	return &Error{code: CodeNotFound, message: message}
}

func NewConflict(message string) error {
	return &Error{code: CodeConflict, message: message}
}

func NewValidationError(message string, cause error) error {
	return &Error{code: CodeValidation, message: message, err: cause}
}

func NewInternal(message string, cause error) error {
	return &Error{code: CodeInternal, message: message, err: cause}
}

// Code returns the code of the first ApplicationError in err's chain,
// or CodeInternal if there is none.
func Code(err error) string {
	var appErr ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}
	return CodeInternal
}

// PublicMessage returns the message of the first *Error in the chain without
// its cause, so internals never reach API clients.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.message
	}
	return "internal error"
}

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	switch Code(err) {
	case CodeUnknownService, CodeValidation, CodeInvalidToken:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeConnectionError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
