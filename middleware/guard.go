package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrEthical07/examauth"
)

// Authenticator is satisfied by *examauth.Engine.
type Authenticator interface {
	Authenticate(ctx context.Context, bearerToken string) (*examauth.UserClaims, error)
}

// Guard rejects requests without a valid access token.
func Guard(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				w.Header().Set("WWW-Authenticate", examauth.TokenType)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := auth.Authenticate(r.Context(), header)
			if err != nil {
				if errors.Is(err, examauth.ErrDownstreamUnavailable) {
					http.Error(w, "authentication unavailable", http.StatusBadGateway)
					return
				}
				w.Header().Set("WWW-Authenticate", examauth.TokenType)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(examauth.ContextWithClaims(r.Context(), claims)))
		})
	}
}
