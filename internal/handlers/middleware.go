package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"schoolhub/internal/models"
	"schoolhub/internal/security"
)

// Middleware holds the shared authentication and throttling concerns
type Middleware struct {
	jwtSecret    string
	loginLimiter *security.RateLimiter
}

// NewMiddleware creates handler middleware
func NewMiddleware(jwtSecret string, loginLimiter *security.RateLimiter) *Middleware {
	return &Middleware{
		jwtSecret:    jwtSecret,
		loginLimiter: loginLimiter,
	}
}

type claimsKey struct{}

// ClaimsFromContext returns the authenticated claims, or nil outside an
// authenticated request.
func ClaimsFromContext(ctx context.Context) *security.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*security.Claims)
	return claims
}

// RequireAuth rejects requests without a valid bearer token
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		claims, err := security.ParseToken(m.jwtSecret, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireParent rejects authenticated requests whose caller is not a parent
func (m *Middleware) RequireParent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		if claims.Role != models.RoleParent {
			writeError(w, http.StatusForbidden, "Parent account required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit throttles an endpoint by client IP
func (m *Middleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.loginLimiter.Allow(security.GetClientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "Too many attempts, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Logging logs each request with its duration
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
