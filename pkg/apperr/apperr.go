// Package apperr defines the typed errors shared by the domain services and
// mapped to HTTP responses by the error handler middleware.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind categorises an application error.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindAuthorization   Kind = "authorization"
	KindNotFound        Kind = "not_found"
	KindUnauthenticated Kind = "unauthenticated"
	KindInternal        Kind = "internal"
)

// Error is a categorised application error. Fields carries per-field
// messages for validation failures so they can be shown inline on a form.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Cause   error

	// Redirect overrides where the client is sent for authorization and
	// unauthenticated errors.
	Redirect string
}

func (e *Error) Error() string {
	msg := e.Message
	if len(e.Fields) > 0 && msg == "" {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		msg = strings.Join(parts, "; ")
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// WithRedirect sets the redirect target and returns e.
func (e *Error) WithRedirect(path string) *Error {
	e.Redirect = path
	return e
}

// Validation returns a validation error with a form-level message.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// FieldValidation returns a validation error attached to a single field.
func FieldValidation(field, message string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: map[string]string{field: message}}
}

// ValidationFields returns a validation error for several fields at once.
func ValidationFields(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Fields: fields}
}

// Authorization returns an error for an actor lacking a privilege.
func Authorization(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message}
}

// NotFound returns an error for an unknown entity.
func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Message: entity + " not found"}
}

// Unauthenticated returns an error for a request without a valid session.
func Unauthenticated(message string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: message}
}

// Internal wraps an unexpected failure.
func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Cause: cause}
}

// KindOf reports the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is an application error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func IsValidation(err error) bool    { return Is(err, KindValidation) }
func IsAuthorization(err error) bool { return Is(err, KindAuthorization) }
func IsNotFound(err error) bool      { return Is(err, KindNotFound) }

// As extracts the *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
