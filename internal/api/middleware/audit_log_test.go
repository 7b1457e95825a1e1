package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openviking/openviking/internal/identity"
	"github.com/openviking/openviking/internal/pkg/audit"
	"github.com/openviking/openviking/internal/vikingfs"
)

func newTrail(t *testing.T) *audit.Trail {
	t.Helper()
	backend, err := vikingfs.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	return audit.NewTrail(backend)
}

func TestAuditLog_RecordsAdminMutations(t *testing.T) {
	trail := newTrail(t)
	handler := AuditLog(trail)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/accounts", nil)
	req = req.WithContext(identity.WithRequestContext(req.Context(), identity.RequestContext{
		User: identity.UserIdentifier{AccountID: "acme", UserID: "alice"},
		Role: identity.RoleAdmin,
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	records, err := trail.Query(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "acme/alice", records[0].Actor)
	assert.Equal(t, "POST", records[0].Action)
	assert.Equal(t, "/api/v1/admin/accounts", records[0].Target)
	assert.Equal(t, "success", records[0].Result)
}

func TestAuditLog_RecordsFailures(t *testing.T) {
	trail := newTrail(t)
	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	handler := AuditLog(trail)(failing)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/accounts/acme", nil)
	req = req.WithContext(identity.WithRequestContext(req.Context(), identity.RequestContext{Role: identity.RoleRoot}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	records, err := trail.Query(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ROOT", records[0].Actor)
	assert.Equal(t, "failure", records[0].Result)
}

func TestAuditLog_SkipsReadsAndNonAdminPaths(t *testing.T) {
	trail := newTrail(t)
	handler := AuditLog(trail)(okHandler())

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, "/api/v1/admin/accounts"},
		{http.MethodPost, "/api/v1/search/find"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}

	records, err := trail.Query(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
