package middleware

import (
	"net/http"
	"strings"
)

const (
	// DefaultStandardMaxBodyBytes is the default max request body for
	// non-ingest API requests (512KB).
	DefaultStandardMaxBodyBytes = 512 * 1024
	// DefaultIngestMaxBodyBytes is the default max request body for
	// POST /api/v1/resources (8MB); pasted documents can be large.
	DefaultIngestMaxBodyBytes = 8 * 1024 * 1024
)

// MaxBodySize returns middleware that limits request body size: ingestMax
// for resource ingest, standardMax otherwise. Only methods that may carry
// a body (POST, PUT, PATCH) are limited.
func MaxBodySize(standardMax, ingestMax int64) func(http.Handler) http.Handler {
	if standardMax <= 0 {
		standardMax = DefaultStandardMaxBodyBytes
	}
	if ingestMax <= 0 {
		ingestMax = DefaultIngestMaxBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}
			max := standardMax
			if strings.HasPrefix(r.URL.Path, "/api/v1/resources") {
				max = ingestMax
			}
			r.Body = http.MaxBytesReader(w, r.Body, max)
			next.ServeHTTP(w, r)
		})
	}
}
