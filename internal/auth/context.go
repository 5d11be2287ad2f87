package auth

import "context"

type contextKey string

const contextKeyRole contextKey = "auth.role"

// WithRole stores the caller's role in context.
func WithRole(ctx context.Context, role Role) context.Context {
	return context.WithValue(ctx, contextKeyRole, role)
}

// RoleFromContext extracts role from context.
func RoleFromContext(ctx context.Context) Role {
	if ctx == nil {
		return ""
	}
	role, _ := ctx.Value(contextKeyRole).(Role)
	return role
}
