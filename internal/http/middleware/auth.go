package middleware

import (
	"net/http"

	"evsehub/internal/auth"
)

// CookieAuth validates the signed auth cookie issued by the login endpoint.
// Requests without a valid cookie get 401; obtaining a cookie is the login
// handler's job.
func CookieAuth(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(auth.CookieName)
			if err != nil || cookie.Value == "" {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			if err := tokens.ValidateToken(cookie.Value); err != nil {
				http.Error(w, "invalid auth token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
