package issues

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/issuedesk/internal/rbac"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

func newTestRouter(f *fixture) http.Handler {
	h := NewHandler(discardLogger(), f.svc, rbac.Middleware{}, 1<<20)
	principals := map[string]rbac.Principal{"admin": adminP, "alice": userA, "bob": userB}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if p, ok := principals[req.Header.Get("X-Test-User")]; ok {
				req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), p))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/issues", h.MountRoutes)
	return r
}

func do(t *testing.T, router http.Handler, user, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec, env
}

func TestHandlerCreateAndGet(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f)

	rec, env := do(t, router, "alice", http.MethodPost, "/issues", map[string]string{"title": "Crash", "description": "App crashes"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, env.Success)
	var created Issue
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, StatusOpen, created.Status)

	rec, env = do(t, router, "alice", http.MethodGet, "/issues/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got View
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "alice@example.com", got.CreatorEmail)

	rec, _ = do(t, router, "bob", http.MethodGet, "/issues/1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerValidationEnvelope(t *testing.T) {
	router := newTestRouter(newFixture())
	rec, env := do(t, router, "alice", http.MethodPost, "/issues", map[string]string{"title": "Bug", "description": "x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Validation failed", env.Message)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "description", env.Errors[0].Field)
}

func TestHandlerRouteGuards(t *testing.T) {
	f := newFixture()
	f.seed(t, userA, "Alice bug")
	router := newTestRouter(f)

	cases := []struct {
		user, method, path string
		body               any
		want               int
	}{
		{"", http.MethodGet, "/issues/my-issues", nil, http.StatusUnauthorized},
		{"alice", http.MethodGet, "/issues", nil, http.StatusForbidden},
		{"admin", http.MethodGet, "/issues", nil, http.StatusOK},
		{"alice", http.MethodGet, "/issues/my-issues", nil, http.StatusOK},
		{"alice", http.MethodGet, "/issues/stats/counts", nil, http.StatusForbidden},
		{"alice", http.MethodGet, "/issues/my-stats/counts", nil, http.StatusOK},
		{"alice", http.MethodGet, "/issues/export/csv", nil, http.StatusForbidden},
		{"alice", http.MethodGet, "/issues/metadata", nil, http.StatusOK},
		{"alice", http.MethodPatch, "/issues/1/status", map[string]string{"status": "closed"}, http.StatusForbidden},
		{"alice", http.MethodDelete, "/issues/1", nil, http.StatusForbidden},
		{"bob", http.MethodPut, "/issues/1", map[string]string{"title": "Hijacked"}, http.StatusForbidden},
		{"alice", http.MethodPut, "/issues/1", map[string]string{"status": "closed"}, http.StatusForbidden},
		{"admin", http.MethodPatch, "/issues/1/status", map[string]string{"status": "closed"}, http.StatusOK},
		{"admin", http.MethodGet, "/issues/abc", nil, http.StatusBadRequest},
		{"admin", http.MethodDelete, "/issues/99", nil, http.StatusNotFound},
		{"admin", http.MethodDelete, "/issues/1", nil, http.StatusOK},
	}
	for _, tc := range cases {
		rec, _ := do(t, router, tc.user, tc.method, tc.path, tc.body)
		assert.Equal(t, tc.want, rec.Code, "%s %s as %q: %s", tc.method, tc.path, tc.user, rec.Body.String())
	}
}

func TestHandlerListMyIssues(t *testing.T) {
	f := newFixture()
	f.seed(t, userA, "Alice bug")
	f.seed(t, userB, "Bob bug")
	router := newTestRouter(f)

	rec, env := do(t, router, "alice", http.MethodGet, "/issues/my-issues?createdBy=3&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res ListResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "Alice bug", res.Issues[0].Title)
	assert.Equal(t, 5, res.Pagination.PerPage)
}

func TestHandlerMultipartCreate(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("title", "Screenshot"))
	require.NoError(t, mw.WriteField("description", "See attached"))
	require.NoError(t, mw.WriteField("priority", "high"))
	part, err := mw.CreateFormFile("attachment", "shot.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/issues", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Test-User", "alice")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var created Issue
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, PriorityHigh, created.Priority)
	require.NotNil(t, created.Attachment)
	assert.True(t, f.store.has(*created.Attachment))

	req = httptest.NewRequest(http.MethodGet, "/issues/1/attachment", nil)
	req.Header.Set("X-Test-User", "alice")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://files.example.com/"+*created.Attachment, rec.Header().Get("Location"))
}

func TestHandlerExportCSV(t *testing.T) {
	f := newFixture()
	f.seed(t, userA, "=cmd|calc")
	f.seed(t, userB, "Bob bug")
	router := newTestRouter(f)

	rec, _ := do(t, router, "admin", http.MethodGet, "/issues/export/csv?sortBy=title&sortOrder=asc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment; filename=\"issues-")

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "'=cmd|calc", records[1][1])
	assert.Equal(t, "Bob bug", records[2][1])

	rec, _ = do(t, router, "admin", http.MethodGet, "/issues/export/xml", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExportJSON(t *testing.T) {
	f := newFixture()
	f.seed(t, userA, "Alice bug")
	router := newTestRouter(f)

	rec, _ := do(t, router, "admin", http.MethodGet, "/issues/export/json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var doc jsonExport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, 1, doc.Count)
	assert.Equal(t, "Alice bug", doc.Issues[0].Title)
}
