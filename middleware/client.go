package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/examauth"
)

// ClientInfo attaches the client IP and User-Agent to the request context.
// With trustForwarded set, the first X-Forwarded-For entry wins over
// RemoteAddr; only enable it behind a proxy that overwrites the header.
func ClientInfo(trustForwarded bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := examauth.WithClientIP(r.Context(), ClientIP(r, trustForwarded))
			ctx = examauth.WithUserAgent(ctx, r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP extracts the caller's address from r.
func ClientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
