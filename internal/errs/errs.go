// Package errs holds the error kinds every layer of the service agrees on.
// Services return *Error values, the HTTP layer maps Kind to a status code.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation        Kind = "ValidationError"
	KindAuthentication    Kind = "AuthenticationError"
	KindAccessDenied      Kind = "AccessDeniedError"
	KindNotFound          Kind = "NotFoundError"
	KindKeyGeneration     Kind = "KeyGenerationError"
	KindStorageConnection Kind = "StorageConnectionError"
	KindEmptyProject      Kind = "EmptyProjectError"
	KindInternal          Kind = "InternalError"
)

type Error struct {
	Kind    Kind
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

// Is reports a match on kind alone, so errors.Is(err, errs.ErrValidation)
// holds for any validation failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrAuthentication    = &Error{Kind: KindAuthentication}
	ErrAccessDenied      = &Error{Kind: KindAccessDenied}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrKeyGeneration     = &Error{Kind: KindKeyGeneration}
	ErrStorageConnection = &Error{Kind: KindStorageConnection}
	ErrEmptyProject      = &Error{Kind: KindEmptyProject}
)

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func Authentication(format string, args ...any) *Error {
	return New(KindAuthentication, format, args...)
}

func AccessDenied(format string, args ...any) *Error {
	return New(KindAccessDenied, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func KeyGeneration(err error) *Error {
	return Wrap(KindKeyGeneration, err, "Failed to generate key pair")
}

func StorageConnection(err error) *Error {
	return Wrap(KindStorageConnection, err, "Could not connect to the object storage")
}

func EmptyProject(publicID string) *Error {
	return New(KindEmptyProject, "The project '%s' is empty", publicID)
}

// KindOf returns KindInternal for anything that is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message. Internal errors never leak
// their cause.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "Internal server error"
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAccessDenied:
		return http.StatusForbidden
	case KindNotFound, KindEmptyProject:
		return http.StatusNotFound
	case KindStorageConnection:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
