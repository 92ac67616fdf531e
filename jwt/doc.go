// Package jwt issues and verifies fingerprint-bound bearer tokens.
//
// Every token is HS256-signed under a key derived from a server secret and
// the requesting client's fingerprint (see fingerprint.DeriveKey), so a
// token lifted from one client context does not verify from another. Access
// and refresh tokens share the derivation and use independent secrets.
package jwt
