package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/openviking/openviking/internal/identity"
	"github.com/openviking/openviking/internal/keymanager"
	"github.com/openviking/openviking/internal/ovterrors"
	"github.com/openviking/openviking/internal/pkg/metrics"
)

// isUnauthenticatedPath reports the paths that never require a key: health probes, metrics, and
// the invitation-token registration flow.
func isUnauthenticatedPath(path string) bool {
	switch path {
	case "/health", "/ready", "/metrics":
		return true
	}
	return strings.HasPrefix(path, "/api/v1/register/")
}

// ExtractAPIKey pulls the key from Authorization: Bearer <key> or the
// dedicated X-API-Key header; both MUST be accepted.
func ExtractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if key, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(key)
		}
		return strings.TrimSpace(auth)
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// Auth resolves the API key through the key manager and binds the
// resulting RequestContext. Resolution failures reject immediately;
// handlers behind this middleware can assume an authenticated identity.
func Auth(manager *keymanager.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isUnauthenticatedPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			rc, err := manager.Resolve(ExtractAPIKey(r))
			if err != nil {
				outcome := "unauthenticated"
				status := http.StatusUnauthorized
				code := ovterrors.Unauthenticated
				if ovterrors.Is(err, ovterrors.PermissionDenied) {
					outcome = "suspended"
					status = http.StatusForbidden
					code = ovterrors.PermissionDenied
				}
				metrics.AuthResolutionsTotal.WithLabelValues(outcome).Inc()
				writeAuthError(w, status, code, err)
				return
			}
			metrics.AuthResolutionsTotal.WithLabelValues("success").Inc()
			next.ServeHTTP(w, r.WithContext(identity.WithRequestContext(r.Context(), rc)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, code ovterrors.Code, err error) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	msg := "authentication failed"
	var e *ovterrors.Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	WriteError(w, status, code, msg)
}
