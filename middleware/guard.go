package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/respond"
)

type claimsContextKey struct{}

func ClaimsFromContext(ctx context.Context) (*authcore.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*authcore.Claims)
	return claims, ok
}

// WithClaims returns ctx carrying claims. Handlers under test use it in
// place of Guard.
func WithClaims(ctx context.Context, claims *authcore.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// Guard rejects requests whose Authorization header does not carry an
// access token valid for the request fingerprint. It must run inside
// ClientContext.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				respond.Error(w, authcore.ErrEngineNotReady)
				return
			}

			claims, err := engine.Authorize(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				respond.Error(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}
