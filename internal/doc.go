// Package internal holds helpers private to authcore.
//
// Sub-packages:
//
//   - config: server configuration loading
//   - flows: session orchestration (issue, rotate, replay revocation)
//   - identity: user resolution from credentials or federated profiles
//   - rate: per-(address, purpose) attempt throttling
//   - respond: JSON response envelope for the HTTP layer
//   - stores: Redis adapters for the refresh ledger and verification codes
//   - verification: single-use numeric code issuance and validation
package internal
