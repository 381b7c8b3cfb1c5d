package http

import (
	"context"
	"net/http"

	"scooter-share-pro/internal/domain"
	"scooter-share-pro/internal/security"
)

type contextKey string

const (
	claimsKey contextKey = "claims"

	// AccessTokenCookie carries the access token for browser sessions.
	AccessTokenCookie = "access_token"
)

// WithClaims stores the authenticated caller on the context.
func WithClaims(ctx context.Context, claims *security.UserClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the caller set by RequireAuth, if any.
func ClaimsFromContext(ctx context.Context) (*security.UserClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*security.UserClaims)
	return claims, ok && claims != nil
}

// actorID returns the caller's user ID. Routes behind RequireAuth always have one.
func actorID(r *http.Request) int32 {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		return 0
	}
	return claims.UserID
}

func isAdmin(r *http.Request) bool {
	claims, ok := ClaimsFromContext(r.Context())
	return ok && claims.Role == string(domain.RoleAdmin)
}
