package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingoloop/lingoloop/internal/auth"
)

type fakeLister struct {
	owner  string
	params ListParams
	logs   []AuditLog
	err    error
}

func (f *fakeLister) ListByOwner(_ context.Context, owner string, params ListParams) ([]AuditLog, int64, error) {
	f.owner = owner
	f.params = params
	return f.logs, int64(len(f.logs)), f.err
}

func withClaims(r *http.Request, userID string) *http.Request {
	return r.WithContext(auth.WithUserClaims(r.Context(), &auth.AccessClaims{UserID: userID}))
}

func TestHandler_List(t *testing.T) {
	repo := &fakeLister{logs: []AuditLog{{OwnerUserID: "learner-1", EventType: "quota_consumed"}}}
	h := NewHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quota/audit?event_type=quota_consumed&page=2&page_size=5&from=2026-01-01T00:00:00Z&to=bad", nil)
	rec := httptest.NewRecorder()
	h.List(rec, withClaims(req, "learner-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "learner-1", repo.owner)
	assert.Equal(t, "quota_consumed", repo.params.EventType)
	assert.Equal(t, 2, repo.params.Page)
	assert.Equal(t, 5, repo.params.PageSize)
	require.NotNil(t, repo.params.From)
	assert.Nil(t, repo.params.To)

	var body struct {
		Data       []AuditLog `json:"data"`
		TotalCount int64      `json:"total_count"`
		Page       int        `json:"page"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data, 1)
	assert.Equal(t, int64(1), body.TotalCount)
	assert.Equal(t, 2, body.Page)
}

func TestHandler_List_Unauthenticated(t *testing.T) {
	h := NewHandler(&fakeLister{})
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/quota/audit", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_List_RepositoryError(t *testing.T) {
	h := NewHandler(&fakeLister{err: errors.New("db down")})
	rec := httptest.NewRecorder()
	h.List(rec, withClaims(httptest.NewRequest(http.MethodGet, "/api/v1/quota/audit", nil), "learner-1"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestParseListParams_IgnoresOutOfRangePageSize(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?page_size=500&page=0", nil)
	params := parseListParams(req)
	assert.Equal(t, 20, params.PageSize)
	assert.Equal(t, 1, params.Page)
}
