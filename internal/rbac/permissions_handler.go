package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/issuedesk/internal/platform/httpx"
	"github.com/odyssey-erp/issuedesk/internal/shared"
)

// FeaturesHandler exposes the caller's effective features for client-side gating.
type FeaturesHandler struct{}

// NewFeaturesHandler builds FeaturesHandler instance.
func NewFeaturesHandler() *FeaturesHandler {
	return &FeaturesHandler{}
}

// MountRoutes registers feature routes.
func (h *FeaturesHandler) MountRoutes(r chi.Router) {
	r.Get("/features", h.listFeatures)
}

type featuresResponse struct {
	Role     Role      `json:"role"`
	Enabled  bool      `json:"enabled"`
	Features []Feature `json:"features"`
}

func (h *FeaturesHandler) listFeatures(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, r, shared.ErrUnauthenticated)
		return
	}
	httpx.OK(w, http.StatusOK, "Features retrieved", featuresResponse{
		Role:     p.Role,
		Enabled:  p.Enabled,
		Features: Resolve(p).Sorted(),
	})
}
