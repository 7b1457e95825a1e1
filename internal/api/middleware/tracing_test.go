package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openviking/openviking/internal/pkg/tracing"
)

func TestTracing_PassesThrough(t *testing.T) {
	_, _ = tracing.Init("test-service", "", 1.0)

	handler := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("Expected body OK, got %q", rec.Body.String())
	}
}
