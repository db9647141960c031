// Package stores holds the short-lived, cache-resident records of the
// authentication subsystem: OTP challenges and the access-token blacklist.
//
// # Design
//
// OTP challenges live in a Redis hash at otp:{email}:{purpose} with a TTL equal
// to their remaining lifetime. Verification runs as one Lua script per key so
// the read, attempt check and attempt update cannot interleave with a
// concurrent verification of the same challenge. Only an HMAC-SHA256 of the
// code is stored and the final match is re-checked in constant time.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for transient records.
// It does NOT generate codes, enforce rate limits, or deliver notifications.
//
// # What this package must NOT do
//
//   - Import examauth or any sibling internal package other than the cache layer.
//   - Log or expose plaintext codes.
//   - Use non-constant-time comparisons for secret matching.
package stores
