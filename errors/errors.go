package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrOnlyCensoredFiles  = fmt.Errorf("censored directory contains directories")
	ErrEmptyWords         = fmt.Errorf("no words have been found")
	ErrConnectionBuffer   = fmt.Errorf("connection buffer is full")
	ErrConnectionClosed   = fmt.Errorf("connection is closed")
	ErrUnknownEvent       = fmt.Errorf("unknown event")
	ErrPublisherSaturated = fmt.Errorf("delivery queue is saturated")
)

// Taxonomy shared by every transport. Wrap one of these with %w to get the
// right status code and error code on the wire.
var (
	ErrValidation     = fmt.Errorf("validation error")
	ErrAuthentication = fmt.Errorf("authentication error")
	ErrAuthorization  = fmt.Errorf("authorization error")
	ErrNotFound       = fmt.Errorf("not found")
	ErrTransientStore = fmt.Errorf("store unavailable")
)

const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeAuthentication = "AUTHENTICATION_ERROR"
	CodeAuthorization  = "AUTHORIZATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeUnavailable    = "SERVICE_UNAVAILABLE"
	CodeInternal       = "INTERNAL_ERROR"
)

// Validation builds an ErrValidation carrying a readable message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Authorization(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAuthorization, fmt.Sprintf(format, args...))
}

func Authentication(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAuthentication, fmt.Sprintf(format, args...))
}

// Transient wraps a storage failure so callers may retry.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrTransientStore, err)
}

// HTTPStatus maps an error of the taxonomy to its HTTP status code.
// Anything unknown is an internal error.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case stderrors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case stderrors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case stderrors.Is(err, ErrAuthorization):
		return http.StatusForbidden
	case stderrors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, ErrTransientStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the stable error code sent to clients.
func Code(err error) string {
	switch {
	case stderrors.Is(err, ErrValidation):
		return CodeValidation
	case stderrors.Is(err, ErrAuthentication):
		return CodeAuthentication
	case stderrors.Is(err, ErrAuthorization):
		return CodeAuthorization
	case stderrors.Is(err, ErrNotFound):
		return CodeNotFound
	case stderrors.Is(err, ErrTransientStore):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// Message returns the text safe to expose to a client.
// Internal and store errors never leak their cause.
func Message(err error) string {
	switch Code(err) {
	case CodeInternal:
		return "internal server error"
	case CodeUnavailable:
		return "service temporarily unavailable"
	default:
		return err.Error()
	}
}
