package identity

import "context"

type contextKey struct{}

// WithRequestContext binds rc into ctx. The auth middleware is the only
// producer; handlers are the only consumers; downstream code never reads
// identity state by any other path.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// FromContext returns the bound RequestContext. ok is false for
// unauthenticated requests (health probes, registration).
func FromContext(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(contextKey{}).(RequestContext)
	return rc, ok
}
