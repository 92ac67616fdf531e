// Package stores holds the Redis adapters for short-lived authentication
// state: the refresh-token rotation ledger and single-use verification codes.
//
// Every mutation is one Lua script or one MULTI/EXEC block, so concurrent
// requests for the same user never interleave partial writes. Uniqueness
// comes from Redis key and hash-field identity.
//
// This package does not generate codes or tokens and does not decide
// outcomes; callers in internal/verification and internal/flows do.
package stores
