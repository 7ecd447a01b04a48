package common

import (
	"errors"
	"sort"
	"strings"
)

// Sentinel errors forming the error taxonomy. Callers should match them with
// errors.Is; the transport layers translate them to status codes.
var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")

	// Service-level errors.
	ErrValidation           = errors.New("validation error")
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrForbidden            = errors.New("forbidden")
	ErrInternal             = errors.New("internal error")
	ErrSecondFactorRequired = errors.New("second factor required")

	// Token errors. ErrInvalidToken deliberately covers forged, malformed and
	// expired tokens alike.
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidOrExpired = errors.New("invalid or expired token")
)

// ValidationError lists the request fields that failed validation.
// It matches ErrValidation under errors.Is.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "validation error: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
