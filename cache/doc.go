// Package cache wraps a Redis client with the small set of primitives the
// authentication subsystem needs: get, set with TTL, delete, exists and an
// atomic increment that sets its TTL on the first write.
//
// Keys are built with [Key] from a closed set of namespaces so that OTP
// challenges, blacklist entries, rate-limit counters and generic cached
// lookups can never collide.
//
// # What this package must NOT do
//
//   - Contain business rules. Callers decide what a key means.
//   - Swallow backend failures. Every failure wraps [ErrUnavailable].
package cache
