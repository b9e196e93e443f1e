package llm

import "context"

type disabledKey struct{}

// Disable marks the request so model calls are refused even when a
// provider is configured. Used by the search API's enable_llm=false.
func Disable(ctx context.Context) context.Context {
	return context.WithValue(ctx, disabledKey{}, true)
}

func disabled(ctx context.Context) bool {
	v, _ := ctx.Value(disabledKey{}).(bool)
	return v
}

// EnabledIn reports whether the generator may be used for this request.
func EnabledIn(ctx context.Context, gen Generator) bool {
	return gen != nil && gen.Enabled() && !disabled(ctx)
}
