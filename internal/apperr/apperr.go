package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain failure so the HTTP boundary can pick a status
// code without knowing which component raised it.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindPrecondition
	KindNotFound
	KindAuthorization
	KindUnauthenticated
	KindUnavailable
	KindInvalidTransition
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindConflict:
		return "conflict_error"
	case KindPrecondition:
		return "precondition_error"
	case KindNotFound:
		return "not_found_error"
	case KindAuthorization:
		return "authorization_error"
	case KindUnauthenticated:
		return "unauthenticated_error"
	case KindUnavailable:
		return "unavailable_error"
	case KindInvalidTransition:
		return "invalid_transition_error"
	default:
		return "internal_error"
	}
}

// Error is a typed domain error. Details are copied verbatim into the JSON
// error body so clients can render a specific remediation message.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
}

func (e *Error) Error() string {
	return e.Message
}

// With attaches a detail field and returns the same error for chaining.
func (e *Error) With(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) *Error {
	return newError(KindValidation, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return newError(KindConflict, format, args...)
}

func Precondition(format string, args ...interface{}) *Error {
	return newError(KindPrecondition, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newError(KindNotFound, format, args...)
}

func Authorization(format string, args ...interface{}) *Error {
	return newError(KindAuthorization, format, args...)
}

func Unauthenticated(format string, args ...interface{}) *Error {
	return newError(KindUnauthenticated, format, args...)
}

func Unavailable(format string, args ...interface{}) *Error {
	return newError(KindUnavailable, format, args...)
}

func InvalidTransition(format string, args ...interface{}) *Error {
	return newError(KindInvalidTransition, format, args...)
}

// KindOf reports the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to its response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindPrecondition, KindInvalidTransition:
		return http.StatusBadRequest
	case KindConflict, KindUnavailable:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthorization:
		return http.StatusForbidden
	case KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
