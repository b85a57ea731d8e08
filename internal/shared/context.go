package shared

import "context"

type identityContextKey struct{}

// ContextWithIdentity stores the request identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the request identity from context. The zero
// Identity is returned for anonymous requests.
func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityContextKey{}).(Identity)
	return id
}
