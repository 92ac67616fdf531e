// Package fingerprint hashes client fingerprints and opaque tokens.
//
// The same primitive serves two callers: the token codec derives its
// per-client signing keys with [DeriveKey], and the refresh ledger stores
// [Hash] of each refresh token instead of the raw value.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the lowercase hex sha256 digest of message.
func Hash(message string) string {
	sum := sha256.Sum256([]byte(message))
	return hex.EncodeToString(sum[:])
}

// DeriveKey binds secret to a client fingerprint. Changing either input
// changes the key.
func DeriveKey(secret, fingerprint string) []byte {
	return []byte(Hash(secret + fingerprint))
}
