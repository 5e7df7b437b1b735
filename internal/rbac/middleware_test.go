package rbac

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveGuarded(t *testing.T, req Requirement, p *Principal) *httptest.ResponseRecorder {
	t.Helper()
	handler := Middleware{}.Require(req)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	r := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	if p != nil {
		r = r.WithContext(ContextWithPrincipal(r.Context(), *p))
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, r)
	return res
}

func TestRequireWithoutPrincipal(t *testing.T) {
	res := serveGuarded(t, Requirement{}, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestRequireDeniedIsForbidden(t *testing.T) {
	p := userPrincipal()
	res := serveGuarded(t, AllOf(FeatureUsersManage), &p)
	require.Equal(t, http.StatusForbidden, res.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["message"], ReasonMissingPermissions)
}

func TestRequireAllowed(t *testing.T) {
	p := adminPrincipal()
	res := serveGuarded(t, AllOf(FeatureUsersManage).WithRoles(RoleAdmin), &p)
	assert.Equal(t, http.StatusNoContent, res.Code)
}

func TestRequirePanicsOnUnsatisfiableRequirement(t *testing.T) {
	assert.Panics(t, func() {
		Middleware{}.RequireAll(Feature("reports.delete"))
	})
}

func TestFeaturesHandler(t *testing.T) {
	p := userPrincipal()
	p.Grants = []Feature{FeatureIssuesExport}
	r := httptest.NewRequest(http.MethodGet, "/auth/features", nil)
	r = r.WithContext(ContextWithPrincipal(r.Context(), p))
	res := httptest.NewRecorder()
	NewFeaturesHandler().listFeatures(res, r)

	require.Equal(t, http.StatusOK, res.Code)
	var body struct {
		Data featuresResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, RoleUser, body.Data.Role)
	assert.Contains(t, body.Data.Features, FeatureIssuesExport)
	assert.Contains(t, body.Data.Features, FeatureIssuesCreate)
}
