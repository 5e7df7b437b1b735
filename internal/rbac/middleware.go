package rbac

import (
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/issuedesk/internal/platform/httpx"
	"github.com/odyssey-erp/issuedesk/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// Require guards a route with req. It panics when req can never be satisfied so that
// misconfigured routes fail at startup rather than denying every request.
func (m Middleware) Require(req Requirement) func(http.Handler) http.Handler {
	if err := CheckRequirement(req); err != nil {
		panic(err)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, r, shared.ErrUnauthenticated)
				return
			}
			decision := Authorize(p, req)
			if !decision.Allowed {
				if m.Logger != nil {
					m.Logger.Debug("rbac denied",
						slog.Int64("user_id", p.UserID),
						slog.String("role", string(p.Role)),
						slog.String("path", r.URL.Path),
						slog.String("reason", decision.Reason))
				}
				httpx.RespondError(w, r, shared.Errorf(shared.ErrForbidden, "Access denied: %s", decision.Reason))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAny ensures the current principal has at least one of the features.
func (m Middleware) RequireAny(features ...Feature) func(http.Handler) http.Handler {
	return m.Require(AnyOf(features...))
}

// RequireAll ensures the current principal has all features.
func (m Middleware) RequireAll(features ...Feature) func(http.Handler) http.Handler {
	return m.Require(AllOf(features...))
}

// RequireAuthenticated only checks that a principal is present.
func (m Middleware) RequireAuthenticated() func(http.Handler) http.Handler {
	return m.Require(Requirement{})
}
