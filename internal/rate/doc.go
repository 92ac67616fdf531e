// Package rate throttles sensitive operations per (source address, purpose)
// with an escalating lockout.
//
// # Counter layout
//
// One Redis hash per pair, key "<prefix>:at:<purpose>:<address>", fields
// "count" and "last" (unix milliseconds). Counters carry no TTL; staleness
// is derived from the policy window at check time.
//
// # Lockout arithmetic
//
// With tier = count / max, a check is rejected only when count is an exact
// multiple of max and now < last + window*tier. Attempts between multiples
// are never rejected, so the Nth full multiple locks for N windows.
//
// # Concurrency
//
// Check reads the counter and RecordAttempt increments it in a separate
// atomic script. Requests from one address that check concurrently near a
// multiple can all pass before any of them records, so up to (in-flight
// requests - 1) extra attempts may slip through at each boundary. This
// under-count is accepted instead of serializing requests per address.
package rate
