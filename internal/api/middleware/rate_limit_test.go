package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openviking/openviking/internal/identity"
)

func requestForAccount(accountID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search/find", nil)
	rc := identity.RequestContext{
		User: identity.UserIdentifier{AccountID: accountID, UserID: "u"},
		Role: identity.RoleUser,
	}
	return req.WithContext(identity.WithRequestContext(req.Context(), rc))
}

func TestRateLimit_Disabled(t *testing.T) {
	handler := RateLimit(0, 0)(okHandler())
	for i := 0; i < 100; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestForAccount("acme"))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimit_BurstExhaustion(t *testing.T) {
	handler := RateLimit(1, 3)(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestForAccount("acme"))
		assert.Equal(t, http.StatusOK, rec.Code, "request %d within burst", i)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestForAccount("acme"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimit_PerAccountIsolation(t *testing.T) {
	handler := RateLimit(1, 1)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestForAccount("acme"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestForAccount("acme"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// A different account has its own bucket.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestForAccount("other_co"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_RootExempt(t *testing.T) {
	handler := RateLimit(1, 1)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/accounts", nil)
	req = req.WithContext(identity.WithRequestContext(req.Context(), identity.RequestContext{Role: identity.RoleRoot}))
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
