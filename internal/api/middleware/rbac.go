package middleware

import (
	"net/http"

	"github.com/openviking/openviking/internal/identity"
	"github.com/openviking/openviking/internal/ovterrors"
)

// RequireRole gates a handler behind a role set. Requests without a bound
// RequestContext; only possible if the Auth middleware was skipped; are
// rejected the same as a wrong role; per-account narrowing for ADMIN
// happens in-handler.
func RequireRole(roles ...identity.Role) func(http.Handler) http.Handler {
	allowed := make(map[identity.Role]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc, ok := identity.FromContext(r.Context())
			if !ok || !allowed[rc.Role] {
				WriteError(w, http.StatusForbidden, ovterrors.PermissionDenied, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
