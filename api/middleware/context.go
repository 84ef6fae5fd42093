package middleware

import (
	"context"

	pkgAuth "github.com/angelmondragon/petcare-pricing/pkg/auth"
)

type contextKey int

const (
	ctxPrincipal contextKey = iota
	ctxRequestID
)

// Principal is the authenticated caller as seen by handlers.
type Principal struct {
	UserID        string
	Role          string
	CustomerGroup string
}

func principalFromClaims(claims *pkgAuth.AccessTokenClaims) Principal {
	p := Principal{UserID: claims.UserID.String(), Role: claims.Role.String()}
	if claims.CustomerGroup != nil {
		p.CustomerGroup = *claims.CustomerGroup
	}
	return p
}

// PrincipalFromContext returns the caller set by Auth, or the zero value.
func PrincipalFromContext(ctx context.Context) Principal {
	if ctx == nil {
		return Principal{}
	}
	p, _ := ctx.Value(ctxPrincipal).(Principal)
	return p
}

func withPrincipal(ctx context.Context, edit func(*Principal)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	p := PrincipalFromContext(ctx)
	edit(&p)
	return context.WithValue(ctx, ctxPrincipal, p)
}

// RequestIDFromContext returns the id assigned by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxRequestID).(string)
	return id
}

func UserIDFromContext(ctx context.Context) string { return PrincipalFromContext(ctx).UserID }

func RoleFromContext(ctx context.Context) string { return PrincipalFromContext(ctx).Role }

// CustomerGroupFromContext is empty unless a customer token named a group.
func CustomerGroupFromContext(ctx context.Context) string {
	return PrincipalFromContext(ctx).CustomerGroup
}

// The With helpers below seed a principal without a token, for tests and
// internal callers.
func WithUserID(ctx context.Context, userID string) context.Context {
	return withPrincipal(ctx, func(p *Principal) { p.UserID = userID })
}

func WithRole(ctx context.Context, role string) context.Context {
	return withPrincipal(ctx, func(p *Principal) { p.Role = role })
}

func WithCustomerGroup(ctx context.Context, group string) context.Context {
	return withPrincipal(ctx, func(p *Principal) { p.CustomerGroup = group })
}
