package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore"
)

// ClientOptions controls how the caller's address is derived.
type ClientOptions struct {
	// TrustForwardedFor takes the first X-Forwarded-For entry as the
	// client address. Enable it only behind a proxy that sets the header.
	TrustForwardedFor bool
}

// ClientContext attaches the client address and the User-Agent
// fingerprint to every request.
func ClientContext(opts ClientOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := authcore.WithClientIP(r.Context(), clientIP(r, opts))
			ctx = authcore.WithFingerprint(ctx, r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func clientIP(r *http.Request, opts ClientOptions) string {
	if opts.TrustForwardedFor {
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
