// Package apperr defines the error kinds shared by the booking, rating and
// stay services and their mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kinds. Compare with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidRange      = errors.New("invalid range")
	ErrInvalidWindow     = errors.New("invalid window")
	ErrInvalidScore      = errors.New("invalid score")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrValidation        = errors.New("validation failed")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrForbidden         = errors.New("forbidden")
)

// Error carries a kind, a client-safe message and an optional cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind so that errors.Is(err, ErrConflict) works without the
// cause having to be ErrConflict itself.
func (e *Error) Is(target error) bool { return e.Kind == target }

func newf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return newf(ErrNotFound, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newf(ErrConflict, format, args...)
}

func InvalidRange(format string, args ...any) *Error {
	return newf(ErrInvalidRange, format, args...)
}

func InvalidWindow(format string, args ...any) *Error {
	return newf(ErrInvalidWindow, format, args...)
}

func InvalidScore(format string, args ...any) *Error {
	return newf(ErrInvalidScore, format, args...)
}

func InvalidTransition(format string, args ...any) *Error {
	return newf(ErrInvalidTransition, format, args...)
}

func Validation(format string, args ...any) *Error {
	return newf(ErrValidation, format, args...)
}

func Unauthenticated(format string, args ...any) *Error {
	return newf(ErrUnauthenticated, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newf(ErrForbidden, format, args...)
}

// Wrap attaches kind and message to a lower-level cause.
func Wrap(kind error, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// StatusCode maps err to an HTTP status. Unknown errors are 500.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidRange), errors.Is(err, ErrInvalidWindow),
		errors.Is(err, ErrInvalidScore), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// HTTPError converts err into an echo error. Internal failures get a generic
// message and keep the cause as Internal for the request logger.
func HTTPError(err error) *echo.HTTPError {
	code := StatusCode(err)
	if code == http.StatusInternalServerError {
		return echo.NewHTTPError(code, "internal error").SetInternal(err)
	}

	msg := err.Error()
	var ae *Error
	if errors.As(err, &ae) {
		msg = ae.Message
	}
	return echo.NewHTTPError(code, msg)
}
