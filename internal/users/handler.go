package users

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/issuedesk/internal/platform/httpx"
	"github.com/odyssey-erp/issuedesk/internal/rbac"
	"github.com/odyssey-erp/issuedesk/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.FeatureUsersView))
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.showUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.FeatureUsersManage))
		r.Delete("/{id}", h.disableUser)
		r.Patch("/{id}/enable", h.enableUser)
		r.Delete("/{id}/permanent", h.deleteUser)
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseListFilter(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.service.List(r.Context(), filter, shared.ParsePageRequest(r.URL.Query()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Users retrieved successfully", result)
}

func (h *Handler) showUser(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "User retrieved successfully", account)
}

func (h *Handler) disableUser(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, false)
}

func (h *Handler) enableUser(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, true)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, enable bool) {
	actor, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, r, shared.ErrUnauthenticated)
		return
	}
	id, err := userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var (
		account Account
		message string
	)
	if enable {
		account, err = h.service.Enable(r.Context(), actor, id)
		message = "User enabled successfully"
	} else {
		account, err = h.service.Disable(r.Context(), actor, id)
		message = "User disabled successfully"
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, message, account)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, r, shared.ErrUnauthenticated)
		return
	}
	id, err := userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.service.PermanentlyDelete(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "User permanently deleted", result)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("user request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, r, err)
}

func userID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Errorf(shared.ErrBadRequest, "Invalid user id")
	}
	return id, nil
}
