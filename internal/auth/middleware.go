package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/issuedesk/internal/platform/httpx"
	"github.com/odyssey-erp/issuedesk/internal/rbac"
	"github.com/odyssey-erp/issuedesk/internal/shared"
)

// Bearer authenticates requests carrying "Authorization: Bearer <token>". Requests without
// the header pass through unauthenticated so route guards can answer 401. An invalid token
// is rejected immediately.
func Bearer(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			scheme, raw, ok := strings.Cut(header, " ")
			raw = strings.TrimSpace(raw)
			if !ok || !strings.EqualFold(scheme, "Bearer") || raw == "" {
				httpx.RespondError(w, r, shared.Errorf(shared.ErrUnauthenticated, "Malformed authorization header"))
				return
			}
			principal, sess, err := service.Authenticate(r.Context(), raw)
			if err != nil {
				if httpx.StatusFor(err) == http.StatusInternalServerError && logger != nil {
					logger.Error("authenticate bearer", slog.Any("error", err))
				}
				httpx.RespondError(w, r, err)
				return
			}
			ctx := rbac.ContextWithPrincipal(r.Context(), principal)
			ctx = shared.ContextWithSession(ctx, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
