package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/openviking/openviking/internal/identity"
	"github.com/openviking/openviking/internal/ovterrors"
	"github.com/openviking/openviking/internal/pkg/metrics"
)

// accountRateLimiter holds one token bucket per account_id. ROOT and
// unauthenticated paths (health, metrics, registration) are exempt.
type accountRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newAccountRateLimiter(perSec float64, burst int) *accountRateLimiter {
	if burst <= 0 {
		burst = int(perSec)
		if burst < 1 {
			burst = 1
		}
	}
	return &accountRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSec),
		burst:    burst,
	}
}

func (l *accountRateLimiter) limiterFor(accountID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[accountID]; ok {
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.limiters[accountID] = lim
	return lim
}

// RateLimit returns middleware limiting requests per account using a
// token bucket (perSec, burst). perSec <= 0 disables limiting entirely.
// Returns 429 with Retry-After when the bucket is empty.
func RateLimit(perSec float64, burst int) func(http.Handler) http.Handler {
	if perSec <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := newAccountRateLimiter(perSec, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc, ok := identity.FromContext(r.Context())
			if !ok || rc.IsRoot() {
				next.ServeHTTP(w, r)
				return
			}

			lim := limiter.limiterFor(rc.AccountID())
			if !lim.Allow() {
				metrics.RateLimitedTotal.WithLabelValues(rc.AccountID()).Inc()
				w.Header().Set("Retry-After", "1")
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(int(perSec)))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Second).Unix(), 10))
				WriteError(w, http.StatusTooManyRequests, ovterrors.Timeout, "rate limit exceeded, retry later")
				return
			}
			tokens := int(lim.Tokens())
			if tokens < 0 {
				tokens = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(int(perSec)))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(tokens))
			next.ServeHTTP(w, r)
		})
	}
}
