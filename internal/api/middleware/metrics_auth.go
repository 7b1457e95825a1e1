package middleware

import (
	"net/http"

	"github.com/openviking/openviking/internal/keymanager"
	"github.com/openviking/openviking/internal/ovterrors"
)

// MetricsAuth protects the /metrics endpoint with optional API-key
// authentication. When disabled, /metrics stays publicly scrapeable
// (the default for Prometheus).
func MetricsAuth(enabled bool, manager *keymanager.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/metrics" || !enabled {
				next.ServeHTTP(w, r)
				return
			}
			if _, err := manager.Resolve(ExtractAPIKey(r)); err != nil {
				WriteError(w, http.StatusUnauthorized, ovterrors.Unauthenticated, "authentication required for metrics endpoint")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
