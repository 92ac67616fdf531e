package authcore

import "context"

type clientIPContextKey struct{}
type fingerprintContextKey struct{}

// WithClientIP attaches the caller's address to ctx. Attempt counters are
// keyed by it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithFingerprint attaches the client fingerprint (typically the
// User-Agent) to ctx. Issued tokens are bound to it.
func WithFingerprint(ctx context.Context, fp string) context.Context {
	return context.WithValue(ctx, fingerprintContextKey{}, fp)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func fingerprintFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	fp, _ := ctx.Value(fingerprintContextKey{}).(string)
	return fp
}
