package app

import (
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/issuedesk/internal/auth"
	"github.com/odyssey-erp/issuedesk/internal/issues"
	"github.com/odyssey-erp/issuedesk/internal/observability"
	"github.com/odyssey-erp/issuedesk/internal/platform/httpx"
	"github.com/odyssey-erp/issuedesk/internal/rbac"
	"github.com/odyssey-erp/issuedesk/internal/users"
	"github.com/odyssey-erp/issuedesk/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	AuthService    *auth.Service
	AuthHandler    *auth.Handler
	IssuesHandler  *issues.Handler
	UsersHandler   *users.Handler
	RBACMiddleware rbac.Middleware
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
	// UploadDir is served under /uploads/ when attachments are stored on disk.
	UploadDir string
	// Ready reports dependency health for /healthz. Nil means always healthy.
	Ready func(r *http.Request) error
}

// NewRouter constructs the chi.Router with issuedesk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Ready != nil {
			if err := params.Ready(r); err != nil {
				params.Logger.Warn("health check failed", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if dir := strings.TrimSpace(params.UploadDir); dir != "" {
		files := http.StripPrefix("/uploads/", http.FileServer(noListing{http.Dir(dir)}))
		r.Get("/uploads/*", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Disposition", "attachment")
			files.ServeHTTP(w, r)
		})
	}

	r.Group(func(r chi.Router) {
		if params.AuthService != nil {
			r.Use(auth.Bearer(params.AuthService, params.Logger))
		}

		r.Route("/auth", func(r chi.Router) {
			if params.AuthHandler != nil {
				params.AuthHandler.MountRoutes(r)
			}
			r.Group(func(r chi.Router) {
				r.Use(params.RBACMiddleware.RequireAuthenticated())
				rbac.NewFeaturesHandler().MountRoutes(r)
			})
		})
		if params.IssuesHandler != nil {
			r.Route("/issues", params.IssuesHandler.MountRoutes)
		}
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.With(params.RBACMiddleware.RequireAll(rbac.FeatureUsersManage)).
				Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusNotFound, "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	return r
}

// noListing hides directory indexes of the upload directory.
type noListing struct {
	fs http.FileSystem
}

func (n noListing) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if stat.IsDir() {
		_ = f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}
