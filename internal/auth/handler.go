package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/issuedesk/internal/platform/httpx"
	"github.com/odyssey-erp/issuedesk/internal/rbac"
	"github.com/odyssey-erp/issuedesk/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
	limiter func(http.Handler) http.Handler
}

// NewHandler constructs a Handler instance. limiter, when set, guards register and login.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, limiter func(http.Handler) http.Handler) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, limiter: limiter}
}

// MountRoutes registers auth routes on provided router. The bearer middleware must run
// before these routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.limiter != nil {
			r.Use(h.limiter)
		}
		r.Post("/register", h.handleRegister)
		r.Post("/login", h.handleLogin)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated())
		r.Post("/logout", h.handleLogout)
		r.Get("/profile", h.showProfile)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.FeatureProfileEdit))
		r.Put("/profile", h.updateProfile)
		r.Put("/change-password", h.changePassword)
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("auth request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, r, err)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	sess, err := h.service.Register(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, "User registered successfully", sess)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in LoginInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	sess, err := h.service.Login(r.Context(), in)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Fail(w, http.StatusUnauthorized, "Invalid email or password", nil)
			return
		}
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Login successful", sess)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), shared.SessionFromContext(r.Context())); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Logged out successfully", nil)
}

func (h *Handler) showProfile(w http.ResponseWriter, r *http.Request) {
	p, _ := rbac.PrincipalFromContext(r.Context())
	profile, err := h.service.Profile(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Profile retrieved successfully", profile)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var in ProfileInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	p, _ := rbac.PrincipalFromContext(r.Context())
	profile, err := h.service.UpdateProfile(r.Context(), p, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Profile updated successfully", profile)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var in PasswordInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	p, _ := rbac.PrincipalFromContext(r.Context())
	if err := h.service.ChangePassword(r.Context(), p, in); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Password changed successfully", nil)
}
