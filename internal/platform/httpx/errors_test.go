package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/issuedesk/internal/shared"
)

func decode(t *testing.T, rr *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{shared.NewValidationError(shared.FieldError{Field: "title"}), http.StatusBadRequest},
		{shared.Errorf(shared.ErrBadRequest, "nope"), http.StatusBadRequest},
		{shared.ErrUnauthenticated, http.StatusUnauthorized},
		{shared.ErrInvalidCredentials, http.StatusUnauthorized},
		{fmt.Errorf("load: %w", shared.ErrForbidden), http.StatusForbidden},
		{shared.ErrNotFound, http.StatusNotFound},
		{shared.ErrConflict, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

func TestRespondErrorValidation(t *testing.T) {
	rr := httptest.NewRecorder()
	verr := shared.NewValidationError()
	verr.Add("title", "title is required")
	verr.Add("description", "description is required")
	RespondError(rr, httptest.NewRequest(http.MethodPost, "/", nil), verr)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	env := decode(t, rr)
	assert.False(t, env.Success)
	assert.Equal(t, "Validation failed", env.Message)
	assert.Len(t, env.Errors, 2)
}

func TestRespondErrorDomainMessage(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, httptest.NewRequest(http.MethodGet, "/", nil), shared.Errorf(shared.ErrNotFound, "Issue not found"))
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Issue not found", decode(t, rr).Message)
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: connection refused"))
	env := decode(t, rr)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Internal server error", env.Message)
	assert.Empty(t, env.Detail)
}

func TestRespondErrorShowsDetailInDebug(t *testing.T) {
	var env Envelope
	h := WithDebugErrors(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		RespondError(w, r, errors.New("pq: connection refused"))
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	env = decode(t, rr)
	assert.Equal(t, "pq: connection refused", env.Detail)
}

func TestOKEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	OK(rr, http.StatusCreated, "Issue created successfully", map[string]int{"id": 7})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	env := decode(t, rr)
	assert.True(t, env.Success)
	assert.False(t, env.Timestamp.IsZero())
}

func TestDecodeJSON(t *testing.T) {
	var target struct {
		Title string `json:"title"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"x"}`))
	require.NoError(t, DecodeJSON(req, &target))
	assert.Equal(t, "x", target.Title)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	err := DecodeJSON(req, &target)
	assert.ErrorIs(t, err, shared.ErrBadRequest)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	err = DecodeJSON(req, &target)
	assert.ErrorIs(t, err, shared.ErrBadRequest)
	assert.Equal(t, "invalid JSON payload", err.Error())
}

func TestIsMultipart(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	assert.True(t, IsMultipart(req))
	req.Header.Set("Content-Type", "application/json")
	assert.False(t, IsMultipart(req))
}
