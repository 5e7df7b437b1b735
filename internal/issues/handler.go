package issues

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/issuedesk/internal/filestore"
	"github.com/odyssey-erp/issuedesk/internal/platform/httpx"
	"github.com/odyssey-erp/issuedesk/internal/rbac"
	"github.com/odyssey-erp/issuedesk/internal/shared"
)

// multipartOverhead leaves room for the text fields next to the attachment.
const multipartOverhead = 1 << 20

// Handler manages issue endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	maxUpload int64
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, maxUpload int64) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		rbac:      rbac,
		maxUpload: maxUpload,
	}
}

// MountRoutes registers issue routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAll(rbac.FeatureIssuesViewAll)).Get("/", h.listAll)
	r.With(h.rbac.RequireAll(rbac.FeatureIssuesCreate)).Post("/", h.create)
	r.With(h.rbac.RequireAll(rbac.FeatureIssuesViewOwn)).Get("/my-issues", h.listMine)

	// Dashboards
	r.With(h.rbac.RequireAll(rbac.FeatureReportsView)).Get("/stats/counts", h.statsAll)
	r.With(h.rbac.RequireAll(rbac.FeatureIssuesViewOwn)).Get("/my-stats/counts", h.statsMine)

	r.With(h.rbac.Require(rbac.AllOf(rbac.FeatureIssuesExport).WithRoles(rbac.RoleAdmin))).Get("/export/{format}", h.export)
	r.With(h.rbac.RequireAuthenticated()).Get("/metadata", h.metadata)

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.FeatureIssuesViewOwn, rbac.FeatureIssuesViewAll))
		r.Get("/{id}", h.get)
		r.Get("/{id}/attachment", h.attachment)
	})
	r.With(h.rbac.RequireAny(rbac.FeatureIssuesEditOwn, rbac.FeatureIssuesEditAll)).Put("/{id}", h.update)
	r.With(h.rbac.Require(rbac.AllOf(rbac.FeatureIssuesChangeStatus).WithRoles(rbac.RoleAdmin))).Patch("/{id}/status", h.changeStatus)
	r.With(h.rbac.Require(rbac.AllOf(rbac.FeatureIssuesDelete).WithRoles(rbac.RoleAdmin))).Delete("/{id}", h.delete)
}

func (h *Handler) listAll(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, ScopeAll)
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, ScopeOwn)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, scope Scope) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	filter, err := ParseFilter(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.service.List(r.Context(), p, filter, scope, shared.ParsePageRequest(r.URL.Query()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Issues retrieved successfully", result)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var (
		in     CreateInput
		upload *filestore.Upload
	)
	if httpx.IsMultipart(r) {
		form, err := h.parseMultipart(w, r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		defer func() { _ = form.RemoveAll() }()
		in = CreateInput{
			Title:       firstValue(form, "title"),
			Description: firstValue(form, "description"),
			Priority:    firstValue(form, "priority"),
			Status:      firstValue(form, "status"),
		}
		var closeFile func()
		upload, closeFile, err = h.readUpload(form)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		defer closeFile()
	} else if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}

	issue, err := h.service.Create(r.Context(), p, in, upload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, "Issue created successfully", issue)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, err := issueID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	issue, err := h.service.Get(r.Context(), p, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Issue retrieved successfully", issue)
}

func (h *Handler) attachment(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, err := issueID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	url, err := h.service.AttachmentURL(r.Context(), p, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, err := issueID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var (
		in     UpdateInput
		upload *filestore.Upload
	)
	if httpx.IsMultipart(r) {
		form, err := h.parseMultipart(w, r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		defer func() { _ = form.RemoveAll() }()
		in = UpdateInput{
			Title:       optionalValue(form, "title"),
			Description: optionalValue(form, "description"),
			Priority:    optionalValue(form, "priority"),
			Status:      optionalValue(form, "status"),
		}
		in.RemoveAttachment, _ = strconv.ParseBool(firstValue(form, "removeAttachment"))
		var closeFile func()
		upload, closeFile, err = h.readUpload(form)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		defer closeFile()
	} else if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}

	issue, err := h.service.Update(r.Context(), p, id, in, upload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Issue updated successfully", issue)
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, err := issueID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in StatusInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	issue, err := h.service.ChangeStatus(r.Context(), p, id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Issue status updated successfully", issue)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, err := issueID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.Delete(r.Context(), p, id); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Issue deleted successfully", nil)
}

func (h *Handler) statsAll(w http.ResponseWriter, r *http.Request) {
	h.stats(w, r, ScopeAll)
}

func (h *Handler) statsMine(w http.ResponseWriter, r *http.Request) {
	h.stats(w, r, ScopeOwn)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request, scope Scope) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	stats, err := h.service.Stats(r.Context(), p, scope)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Statistics retrieved successfully", stats)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	format := ExportFormat(chi.URLParam(r, "format"))
	if format != FormatCSV && format != FormatJSON {
		h.fail(w, r, shared.Errorf(shared.ErrNotFound, "Unsupported export format %q", format))
		return
	}
	filter, err := ParseFilter(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rows, err := h.service.Export(r.Context(), p, filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	now := time.Now()
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+ExportFilename(format, now)+`"`)
	w.WriteHeader(http.StatusOK)
	if format == FormatJSON {
		err = WriteJSON(w, rows, now)
	} else {
		err = WriteCSV(w, rows)
	}
	if err != nil {
		h.logger.Error("write issue export", slog.String("format", string(format)), slog.Any("error", err))
	}
}

func (h *Handler) metadata(w http.ResponseWriter, r *http.Request) {
	httpx.OK(w, http.StatusOK, "Metadata retrieved successfully", h.service.Metadata())
}

func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request) (*multipart.Form, error) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	}
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, shared.NewValidationError(shared.FieldError{Field: "attachment", Message: "attachment is too large"})
		}
		return nil, shared.Errorf(shared.ErrBadRequest, "invalid multipart payload")
	}
	return r.MultipartForm, nil
}

// readUpload sniffs the optional attachment part. The returned func closes it.
func (h *Handler) readUpload(form *multipart.Form) (*filestore.Upload, func(), error) {
	noop := func() {}
	headers := form.File["attachment"]
	if len(headers) == 0 {
		return nil, noop, nil
	}
	header := headers[0]
	file, err := header.Open()
	if err != nil {
		return nil, noop, shared.Errorf(shared.ErrBadRequest, "unreadable attachment")
	}
	up, err := filestore.Sniff(header.Filename, header.Size, file, h.maxUpload)
	if err != nil {
		_ = file.Close()
		return nil, noop, err
	}
	return &up, func() { _ = file.Close() }, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("issue request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	httpx.RespondError(w, r, err)
}

func principal(w http.ResponseWriter, r *http.Request) (rbac.Principal, bool) {
	p, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, r, shared.ErrUnauthenticated)
	}
	return p, ok
}

func issueID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Errorf(shared.ErrBadRequest, "Invalid issue id")
	}
	return id, nil
}

func firstValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func optionalValue(form *multipart.Form, key string) *string {
	v, ok := form.Value[key]
	if !ok || len(v) == 0 {
		return nil
	}
	return &v[0]
}
