package trace

import "context"

type contextKey struct{}

// disabled is handed out by FromContext when no collector is bound, so
// call sites never need a nil check before Event/Count/Set.
var disabled = &Collector{}

// Bind attaches c to ctx for the lifetime of one request. The binding is
// request-scoped by construction: handlers create one collector, bind it,
// and everything downstream recovers it with FromContext.
func Bind(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the bound collector, or a disabled one.
func FromContext(ctx context.Context) *Collector {
	if c, ok := ctx.Value(contextKey{}).(*Collector); ok && c != nil {
		return c
	}
	return disabled
}
