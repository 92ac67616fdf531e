// Package authcore provides account authentication and session security:
// password and federated login, fingerprint-bound access/refresh token
// pairs with rotation and replay detection, single-use numeric
// verification codes, and escalating per-address attempt throttling.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config]
// and the boundary interfaces [UserStore], [Mailer] and
// [IdentityVerifier]. Flow orchestration, Redis layouts, code issuance and
// throttling live under internal/ and are never exported.
//
// Request metadata travels on the context: [WithClientIP] keys attempt
// counters and [WithFingerprint] binds issued tokens to a client.
//
// # Errors
//
// Every operation returns an [*Error] with a [Kind]. Internal kinds carry
// the fixed message "Internal Server Error"; their cause is logged and
// reachable through errors.Unwrap only.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Retry failed store, mail or provider calls.
//   - Import any sub-package that re-imports authcore (no import cycles).
package authcore
