package auth

import "context"

type contextKey struct{}

// ContextWithSession attaches a validated session to ctx.
func ContextWithSession(ctx context.Context, r SessionValidationResult) context.Context {
	return context.WithValue(ctx, contextKey{}, r)
}

// FromContext returns the session attached by the session middleware.
func FromContext(ctx context.Context) (SessionValidationResult, bool) {
	r, ok := ctx.Value(contextKey{}).(SessionValidationResult)
	return r, ok && r.Valid()
}

// UserFromContext returns the signed-in user, or nil.
func UserFromContext(ctx context.Context) *User {
	if r, ok := FromContext(ctx); ok {
		return r.User
	}
	return nil
}
