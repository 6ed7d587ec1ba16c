package types

import "context"

type depthKey struct{}

// WithDispatchDepth annotates a context with the current dispatch chain
// depth. Components that emit follow-on events read it back so the chain
// guard survives crossing package boundaries.
func WithDispatchDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthKey{}, depth)
}

// DispatchDepth returns the dispatch chain depth carried by the context,
// or zero for externally originated work.
func DispatchDepth(ctx context.Context) int {
	if d, ok := ctx.Value(depthKey{}).(int); ok {
		return d
	}
	return 0
}
