package auth

import (
	"context"
	"net/http"
	"strings"
)

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleWrite      Role = "write"
	RoleRead       Role = "read"
	RoleReplicator Role = "replicator"
)

type contextKey int

const (
	claimsKey contextKey = iota
	subjectKey
)

func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

// TrackSubject lets an outer middleware read the subject that AuthMiddleware
// authenticates further down the chain. The returned func is valid after the
// request has been served.
func TrackSubject(r *http.Request) (*http.Request, func() string) {
	subject := new(string)
	return r.WithContext(context.WithValue(r.Context(), subjectKey, subject)), func() string { return *subject }
}

// AuthMiddleware for gorilla/mux
func AuthMiddleware(validator Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Health checks and scrapes stay open
			if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
				return
			}

			claims, err := validator.ValidateToken(parts[1])
			if err != nil {
				http.Error(w, "Invalid token: "+err.Error(), http.StatusUnauthorized)
				return
			}

			if subject, ok := r.Context().Value(subjectKey).(*string); ok {
				*subject = claims.Subject
			}
			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RBACMiddleware for gorilla/mux
func RBACMiddleware(requiredRole Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			if !claims.HasRole(requiredRole) {
				http.Error(w, "Insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// PublicMiddleware allows access without authentication
func PublicMiddleware(next http.Handler) http.Handler {
	return next
}
