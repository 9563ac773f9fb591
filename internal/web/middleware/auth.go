package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/asgardtech/pathsec/internal/web/auth"
	webcontext "github.com/asgardtech/pathsec/internal/web/context"
	"github.com/asgardtech/pathsec/internal/web/response"
)

// AuthConfig holds configuration for authentication middleware
type AuthConfig struct {
	// Tokens validates bearer tokens
	Tokens *auth.TokenService
	// SkipPaths is a list of paths to skip authentication
	SkipPaths []string
}

// Auth requires a valid bearer token on every request except /healthz
func Auth(tokens *auth.TokenService) Middleware {
	return AuthWithConfig(AuthConfig{
		Tokens:    tokens,
		SkipPaths: []string{"/healthz"},
	})
}

// AuthWithConfig creates an authentication middleware with custom configuration
func AuthWithConfig(config AuthConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skipPath := range config.SkipPaths {
				if r.URL.Path == skipPath {
					next.ServeHTTP(w, r)
					return
				}
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.RenderUnauthorized(w, "Authorization required")
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				response.RenderUnauthorized(w, "Invalid authorization format")
				return
			}

			claims, err := config.Tokens.ValidateToken(token)
			if err != nil {
				response.RenderUnauthorized(w, "Invalid token")
				return
			}

			ctx := webcontext.SetSubject(r.Context(), claims.Subject)
			if len(claims.Scopes) > 0 {
				ctx = webcontext.SetScopes(ctx, claims.Scopes)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope rejects requests whose token lacks scope. Requests without
// authentication, and tokens without scopes, pass.
func RequireScope(scope string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HasScope(r.Context(), scope) {
				response.RenderForbidden(w, "token lacks the "+scope+" scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HasScope reports whether the request's token grants scope
func HasScope(ctx context.Context, scope string) bool {
	claims := auth.Claims{Scopes: webcontext.GetScopes(ctx)}
	return claims.HasScope(scope)
}

// GetSubject extracts the authenticated client from the request context
func GetSubject(ctx context.Context) string {
	return webcontext.GetSubject(ctx)
}
