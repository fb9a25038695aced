package auth

import (
	"context"
	"net/http"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/utils"
)

type contextKey string

const claimsKey contextKey = "claims"

const RoleAdmin = "admin"

// Middleware rejects requests without a valid bearer token.
func Middleware(verifier Verifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				utils.WriteError(w, http.StatusUnauthorized, err.Error())
				return
			}
			claims, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("TOKEN_REJECTED", err.Error())
				utils.WriteError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// OptionalMiddleware attaches the caller when a valid token is present and
// lets anonymous requests through.
func OptionalMiddleware(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rawToken, err := ExtractTokenFromRequest(r); err == nil {
				if claims, err := verifier.Verify(r.Context(), rawToken); err == nil {
					r = r.WithContext(WithClaims(r.Context(), claims))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole must run after Middleware.
func RequireRole(role string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFrom(r.Context())
			if !ok || !claims.HasRole(role) {
				log.LogSecurity("FORBIDDEN", r.Method+" "+r.URL.Path)
				utils.WriteError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func ClaimsFrom(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(Claims)
	return claims, ok
}

// Helper to extract user ID in handlers
func UserID(ctx context.Context) string {
	claims, _ := ClaimsFrom(ctx)
	return claims.Subject
}
