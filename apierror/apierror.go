// Package apierror defines the error kinds reported at the HTTP boundary and
// renders them as JSON responses.
//
// Handlers return (or wrap) an *Error; Write classifies any error and writes
// the matching status code and body. Errors that are not an *Error are
// reported as internal_error without leaking their message to the client.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the machine-readable error code sent in the "error" field.
type Kind string

const (
	KindNotFound             Kind = "not_found"
	KindUnprocessableEntity  Kind = "unprocessable_entity"
	KindMethodNotAllowed     Kind = "method_not_allowed"
	KindPayloadTooLarge      Kind = "payload_too_large"
	KindUnsupportedMediaType Kind = "unsupported_media_type"
	KindInternal             Kind = "internal_error"
)

// StatusCode returns the HTTP status code a kind maps to.
func (k Kind) StatusCode() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnprocessableEntity:
		return http.StatusUnprocessableEntity
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

// Error is an error with a kind and a client-facing message.
//
// Path and SchemaPath are only meaningful for KindUnprocessableEntity: Path
// is the location of the failing value inside the request body (object keys
// as strings, array indices as ints) and SchemaPath the keyword location of
// the schema that rejected it.
type Error struct {
	Kind       Kind
	Message    string
	Path       []any
	SchemaPath []string

	// Err is the underlying cause. It is logged, never sent to the client.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status code for the error.
func (e *Error) StatusCode() int {
	return e.Kind.StatusCode()
}

// NotFound reports a missing resource by identifier, e.g.
// NotFound("Provider", "acme") has the message "Provider 'acme' not found".
func NotFound(resource, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// Unprocessable reports a request body that failed validation.
func Unprocessable(message string, path []any, schemaPath []string) *Error {
	if path == nil {
		path = []any{}
	}
	if schemaPath == nil {
		schemaPath = []string{}
	}

	return &Error{
		Kind:       KindUnprocessableEntity,
		Message:    message,
		Path:       path,
		SchemaPath: schemaPath,
	}
}

// Internal wraps err as an internal_error. The client only sees a generic
// message.
func Internal(err error) *Error {
	return &Error{
		Kind:    KindInternal,
		Message: http.StatusText(http.StatusInternalServerError),
		Err:     err,
	}
}

// New returns an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// From classifies err. An *Error anywhere in the chain is returned as is,
// an *http.MaxBytesError becomes KindPayloadTooLarge, and everything else
// becomes KindInternal.
func From(err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return &Error{
			Kind:    KindPayloadTooLarge,
			Message: fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit),
			Err:     err,
		}
	}

	return Internal(err)
}

// Is reports whether err carries an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind == kind
	}
	return false
}
