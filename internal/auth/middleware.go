package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const adminIDKey contextKey = "admin_id"

// Middleware gates the admin routes. The core does not authenticate users;
// it only verifies the shared-secret token the admin frontend already holds
// and records the subject for audit fields.
func Middleware(secret string) func(http.Handler) http.Handler {
	if secret == "" {
		panic("ADMIN_JWT_SECRET env var not set")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing Authorization header", http.StatusUnauthorized)
				return
			}

			// Expect "Bearer <token>"
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			claims := jwt.RegisteredClaims{}
			_, err := jwt.ParseWithClaims(parts[1], &claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil {
				http.Error(w, fmt.Sprintf("invalid token: %v", err), http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), adminIDKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminID extracts the authenticated admin identity from the context.
func AdminID(ctx context.Context) string {
	if id, ok := ctx.Value(adminIDKey).(string); ok {
		return id
	}
	return ""
}
