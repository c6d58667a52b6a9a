package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/helixbridge/genconsent/internal/auth"
	"github.com/helixbridge/genconsent/internal/roles"
)

// principalRoleKey is the context key for the authenticated role.
type principalRoleKey struct{}

// GetPrincipalRole retrieves the authenticated role from context.
func GetPrincipalRole(ctx context.Context) roles.Role {
	if role, ok := ctx.Value(principalRoleKey{}).(roles.Role); ok {
		return role
	}
	return ""
}

// Authenticate validates the Bearer token on each request and stores the
// caller's account key and role in the context. Requests without a valid
// token get 401.
func Authenticate(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, `{"error":{"code":"unauthorized","message":"missing bearer token"}}`, http.StatusUnauthorized)
				return
			}

			claims, err := jwtService.ValidateToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				http.Error(w, `{"error":{"code":"unauthorized","message":"invalid token"}}`, http.StatusUnauthorized)
				return
			}

			role, err := roles.Parse(claims.Role)
			if err != nil {
				http.Error(w, `{"error":{"code":"unauthorized","message":"unknown role"}}`, http.StatusUnauthorized)
				return
			}

			ctx := SetPrincipalKey(r.Context(), claims.Subject)
			ctx = context.WithValue(ctx, principalRoleKey{}, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCapability gates a handler on the authenticated role holding a
// capability. Must sit inside Authenticate.
func RequireCapability(cap roles.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := GetPrincipalRole(r.Context())
			if !roles.Can(role, cap) {
				http.Error(w, `{"error":{"code":"forbidden","message":"role lacks capability"}}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
