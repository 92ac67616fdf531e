// Package middleware adapts authcore.Engine to net/http.
//
// [ClientContext] attaches the caller's address and fingerprint to the
// request context; attempt throttling and token binding read them from
// there. [Guard] verifies the access token of each request through
// Engine.Authorize and injects the resulting claims.
//
// This package never parses tokens or touches Redis itself; every
// decision is delegated to the Engine.
package middleware
