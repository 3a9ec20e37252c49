package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	dErrors "cityrater/pkg/domain-errors"
	"cityrater/pkg/platform/httputil"
	"cityrater/pkg/requestcontext"
)

// JWTValidator validates bearer tokens issued after Telegram registration.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims are the claims the middleware copies into the request context.
type JWTClaims struct {
	UserKey    string
	TelegramID string
}

// OptionalAuth verifies a bearer token when one is present. Requests without
// an Authorization header pass through anonymously; a malformed or invalid
// token is rejected with 401.
func OptionalAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - malformed authorization header",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token"))
				return
			}

			ctx = requestcontext.WithAuth(ctx, claims.UserKey, claims.TelegramID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
