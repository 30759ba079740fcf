package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/tonoapp/tono-server/utils"
)

type contextKey string

// ClerkIDContextKey carries the authenticated Clerk user id.
const ClerkIDContextKey contextKey = "clerkID"

type Auth struct {
	JWTKey []byte
	Logger *zap.Logger
}

// Middleware verifies the Clerk session token from the Authorization
// header and stores the subject in the request context.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized: Authentication token required")
			return
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return a.JWTKey, nil
		})
		if err != nil || !token.Valid || claims.Subject == "" {
			a.Logger.Debug("rejected session token", zap.Error(err))
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized: Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), ClerkIDContextKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClerkIDFromContext returns the authenticated Clerk user id, if any.
func ClerkIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ClerkIDContextKey).(string)
	return id, ok && id != ""
}
