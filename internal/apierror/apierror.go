// Package apierror provides standardized error response structures for the API
// and the typed error taxonomy shared by services, repositories and handlers.
// All errors returned to clients go through this package to ensure consistency
// and to prevent leaking internal details (stack traces, DB errors, etc.).
package apierror

import (
	"errors"
	"net/http"
)

// APIError is the canonical error envelope for all 4xx/5xx HTTP responses.
type APIError struct {
	Detail    string `json:"detail"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func New(msg string) *APIError {
	return &APIError{Detail: msg}
}

// Validation wraps multiple field errors.
type ValidationError struct {
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationError {
	return &ValidationError{Detail: "Error de validacion", Fields: fields}
}

// ── Taxonomy ─────────────────────────────────────────────────────────────────

// Kind classifies a failure so callers can decide between fixing the request,
// retrying the whole operation, or giving up.
type Kind string

const (
	KindValidation            Kind = "validation"
	KindNotFound              Kind = "not_found"
	KindStateConflict         Kind = "state_conflict"
	KindAuthorizationDenied   Kind = "authorization_denied"
	KindResourceBusy          Kind = "resource_busy"
	KindSerializationConflict Kind = "serialization_conflict"
	KindDeadlockDetected      Kind = "deadlock_detected"
	KindInsufficientStock     Kind = "insufficient_stock"
	KindInfrastructure        Kind = "infrastructure"
)

// Transient reports whether the whole operation may be retried as-is.
func (k Kind) Transient() bool {
	switch k {
	case KindResourceBusy, KindSerializationConflict, KindDeadlockDetected:
		return true
	}
	return false
}

// HTTPStatus maps a kind onto the response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindStateConflict, KindInsufficientStock:
		return http.StatusConflict
	case KindAuthorizationDenied:
		return http.StatusForbidden
	case KindResourceBusy, KindSerializationConflict, KindDeadlockDetected:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error. Message is safe to show to the operator;
// Err (if any) is the internal cause and is never serialized.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match sentinel errors by kind and code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

// E builds a classified error with a stable machine code.
func E(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Wrap classifies cause under kind, keeping it reachable through errors.As.
func Wrap(kind Kind, code, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Err: cause}
}

// Validation is shorthand for a ValidationError-kind failure.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Code: "validation", Message: msg}
}

// Infrastructure hides cause behind a generic message.
func Infrastructure(cause error) *Error {
	return &Error{Kind: KindInfrastructure, Code: "internal", Message: "Error interno del servidor", Err: cause}
}

// KindOf returns the kind of err, or KindInfrastructure when err is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// IsTransient reports whether err belongs to a retryable class.
func IsTransient(err error) bool {
	return err != nil && KindOf(err).Transient()
}

// ToResponse converts err into the wire envelope and status code.
// Unclassified errors collapse to a generic 500.
func ToResponse(err error) (int, *APIError) {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInfrastructure {
		return http.StatusInternalServerError, &APIError{Detail: "Error interno del servidor", Code: "internal"}
	}
	return e.Kind.HTTPStatus(), &APIError{Detail: e.Message, Code: e.Code, Retryable: e.Kind.Transient()}
}
