package shared

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthenticated indicates a missing, invalid or expired credential.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden indicates the principal may not perform the operation.
	ErrForbidden = errors.New("access denied")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates one or more field constraints were violated.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a uniqueness conflict such as a duplicate email.
	ErrConflict = errors.New("conflict")
	// ErrBadRequest indicates a request that is well formed but not applicable to current state.
	ErrBadRequest = errors.New("bad request")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// FieldError describes a single violated field constraint.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates every field violation found in one request.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError builds a ValidationError from the collected field errors.
func NewValidationError(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

// Add appends a violation.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Empty reports whether no violation was recorded.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// Has reports whether the named field was rejected.
func (e *ValidationError) Has(field string) bool {
	if e == nil {
		return false
	}
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

func (e *ValidationError) Error() string {
	if e.Empty() {
		return ErrValidation.Error()
	}
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return ErrValidation.Error() + ": " + strings.Join(names, ", ")
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// OrNil returns nil when nothing was recorded so callers can return it directly.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

// Error is a domain error of a given kind carrying a client-facing message.
type Error struct {
	kind error
	msg  string
}

// Errorf builds an Error of kind. The message is shown to clients verbatim.
func Errorf(kind error, format string, args ...any) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string { return e.msg }

// Unwrap exposes the kind to errors.Is.
func (e *Error) Unwrap() error { return e.kind }
