// Package flows orchestrates session lifecycles on top of the token codec
// and the Redis refresh ledger.
//
// A session lineage moves Issued -> Rotated -> Issued ... Presenting a
// refresh token whose ledger entry is already gone is treated as replay and
// revokes every entry of the user.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (to avoid import cycles).
//   - Retry store operations.
package flows
