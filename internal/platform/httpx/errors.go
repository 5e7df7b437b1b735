// Package httpx provides HTTP response utilities.
package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/odyssey-erp/issuedesk/internal/shared"
)

type debugContextKey struct{}

// WithDebugErrors marks requests whose unexpected errors may expose raw details.
func WithDebugErrors(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), debugContextKey{}, enabled)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func debugEnabled(r *http.Request) bool {
	if r == nil {
		return false
	}
	enabled, _ := r.Context().Value(debugContextKey{}).(bool)
	return enabled
}

// StatusFor maps a domain error to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrUnauthenticated), errors.Is(err, shared.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to the failure envelope.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)

	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		Fail(w, status, "Validation failed", verr.Fields)
		return
	}
	if status == http.StatusInternalServerError {
		env := failure("Internal server error", nil)
		if debugEnabled(r) {
			env.Detail = err.Error()
		}
		write(w, status, env)
		return
	}
	Fail(w, status, clientMessage(err), nil)
}

func clientMessage(err error) string {
	var domainErr *shared.Error
	if errors.As(err, &domainErr) {
		return domainErr.Error()
	}
	for _, kind := range []error{
		shared.ErrInvalidCredentials,
		shared.ErrUnauthenticated,
		shared.ErrForbidden,
		shared.ErrNotFound,
		shared.ErrConflict,
		shared.ErrBadRequest,
	} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return err.Error()
}
