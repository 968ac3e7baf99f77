package auth

import (
	"net/http"
	"strings"

	"routier/pkg/requestcontext"
)

// Middleware resolves the Authorization bearer token, when present and valid,
// into the actor identity carried in the request context. Invalid or absent
// tokens leave the request anonymous; individual handlers decide whether an
// anonymous caller is acceptable.
func Middleware(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if token, ok := strings.CutPrefix(header, "Bearer "); ok {
				if claims, err := tokens.Validate(token); err == nil {
					ctx := requestcontext.WithActor(r.Context(), claims.Username)
					r = r.WithContext(ctx)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
