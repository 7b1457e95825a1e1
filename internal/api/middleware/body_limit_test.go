package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func drainHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestMaxBodySize_StandardWithinLimit(t *testing.T) {
	handler := MaxBodySize(512*1024, 8*1024*1024)(drainHandler())

	body := bytes.NewReader(make([]byte, 100*1024))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search/find", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
}

func TestMaxBodySize_StandardExceedsLimit(t *testing.T) {
	handler := MaxBodySize(1024, 8*1024*1024)(drainHandler())

	body := bytes.NewReader(make([]byte, 4*1024))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search/find", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d", rec.Code)
	}
}

func TestMaxBodySize_IngestGetsLargerBudget(t *testing.T) {
	handler := MaxBodySize(1024, 1024*1024)(drainHandler())

	body := bytes.NewReader(make([]byte, 64*1024))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/resources", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected ingest path to accept 64KB under the 1MB budget, got %d", rec.Code)
	}
}

func TestMaxBodySize_GetNotLimited(t *testing.T) {
	handler := MaxBodySize(16, 16)(drainHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected GET to bypass body limiting, got %d", rec.Code)
	}
}
