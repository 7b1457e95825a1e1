package middleware

import (
	"net/http"
	"strings"

	"github.com/openviking/openviking/internal/identity"
	"github.com/openviking/openviking/internal/pkg/audit"
)

// responseRecorder wraps http.ResponseWriter to capture status code.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// AuditLog records every mutating admin-plane call (POST/PUT/DELETE under
// /api/v1/admin/) to the audit trail: actor, action, target, outcome.
// A trail write failure never fails the admin call itself.
func AuditLog(trail *audit.Trail) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if trail == nil ||
				!strings.HasPrefix(r.URL.Path, "/api/v1/admin/") ||
				(r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodDelete) {
				next.ServeHTTP(w, r)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			actor := "anonymous"
			if rc, ok := identity.FromContext(r.Context()); ok {
				actor = string(rc.Role)
				if rc.User.UserID != "" {
					actor = rc.AccountID() + "/" + rc.User.UserID
				}
			}
			result := "success"
			if rec.statusCode >= 400 {
				result = "failure"
			}
			_ = trail.Append(r.Context(), actor, r.Method, r.URL.Path, result)
		})
	}
}
