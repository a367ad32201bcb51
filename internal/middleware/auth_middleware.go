package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/jorat/landing/internal/service"
	"github.com/sirupsen/logrus"
)

type contextKey string

const claimsKey contextKey = "download_claims"

// ClaimsFromContext returns the download claims stored by RequireDownloadToken.
func ClaimsFromContext(ctx context.Context) (*service.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*service.Claims)
	return claims, ok
}

type DownloadTokenVerifier interface {
	Verify(tokenString string) (*service.Claims, error)
}

type AuthMiddleware struct {
	tokens DownloadTokenVerifier
	logger *logrus.Logger
}

func NewAuthMiddleware(tokens DownloadTokenVerifier, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
		logger: logger,
	}
}

// RequireDownloadToken accepts the token as "Authorization: Bearer <token>"
// or as a ?token= query parameter, since the download page links to the
// file directly.
func (m *AuthMiddleware) RequireDownloadToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.URL.Query().Get("token")

		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				m.respondUnauthorized(w, "Invalid authorization header format")
				return
			}
			tokenString = parts[1]
		}

		if tokenString == "" {
			m.respondUnauthorized(w, "Missing download token")
			return
		}

		claims, err := m.tokens.Verify(tokenString)
		if err != nil {
			m.logger.WithError(err).Debug("Download token verification failed")
			m.respondUnauthorized(w, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) respondUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"success":false,"message":"` + message + `"}`))
}
