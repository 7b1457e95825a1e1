package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openviking/openviking/internal/identity"
	"github.com/openviking/openviking/internal/keymanager"
	"github.com/openviking/openviking/internal/vikingfs"
)

const testRootKey = "root-key-for-tests-0123456789abcdef"

func newTestManager(t *testing.T) *keymanager.Manager {
	t.Helper()
	backend, err := vikingfs.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	m := keymanager.New(testRootKey, backend)
	require.NoError(t, m.Load(context.Background()))
	return m
}

func identityEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, ok := identity.FromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("anonymous"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(string(rc.Role) + ":" + rc.AccountID()))
	})
}

func TestAuth_BearerHeader(t *testing.T) {
	manager := newTestManager(t)
	key, err := manager.CreateAccount(context.Background(), "acme", "alice")
	require.NoError(t, err)

	handler := Auth(manager)(identityEcho())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/system/status", nil)
	req.Header.Set("Authorization", "Bearer "+key)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ADMIN:acme", rec.Body.String())
}

func TestAuth_XAPIKeyHeader(t *testing.T) {
	manager := newTestManager(t)
	handler := Auth(manager)(identityEcho())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/system/status", nil)
	req.Header.Set("X-API-Key", testRootKey)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ROOT:", rec.Body.String())
}

func TestAuth_RejectsInvalidKey(t *testing.T) {
	manager := newTestManager(t)
	handler := Auth(manager)(identityEcho())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/system/status", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unauthenticated")
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}

func TestAuth_RejectsMissingKey(t *testing.T) {
	manager := newTestManager(t)
	handler := Auth(manager)(identityEcho())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/system/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_UnauthenticatedPathsBypass(t *testing.T) {
	manager := newTestManager(t)
	handler := Auth(manager)(identityEcho())

	for _, path := range []string{"/health", "/ready", "/metrics", "/api/v1/register/account"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "anonymous", rec.Body.String(), path)
	}
}

func TestAuth_SuspendedAccountForbidden(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	key, err := manager.CreateAccount(ctx, "acme", "alice")
	require.NoError(t, err)
	require.NoError(t, manager.SuspendAccount(ctx, "acme"))

	handler := Auth(manager)(identityEcho())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/system/status", nil)
	req.Header.Set("Authorization", "Bearer "+key)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The message quotes the account id; the body must still decode.
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "PermissionDenied", errBody["code"])
	assert.Contains(t, errBody["message"], `"acme"`)
}

func TestExtractAPIKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", ExtractAPIKey(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "rawkey")
	assert.Equal(t, "rawkey", ExtractAPIKey(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "xyz")
	assert.Equal(t, "xyz", ExtractAPIKey(req))
}
