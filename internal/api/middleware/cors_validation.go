package middleware

import (
	"log/slog"
	"net/http"

	"github.com/openviking/openviking/internal/config"
)

// CORSValidation logs a warning when the configured origins include a
// wildcard; a multi-tenant API with wildcard CORS exposes every tenant's
// data to any site the user visits.
func CORSValidation(cfg *config.Config, log *slog.Logger) func(http.Handler) http.Handler {
	warned := false
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg != nil && !warned {
				for _, origin := range cfg.AllowedOrigins {
					if origin == "*" || origin == ".*" {
						log.Warn("CORS wildcard detected",
							"origin", origin,
							"recommendation", "use explicit origins for production",
						)
						warned = true
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
