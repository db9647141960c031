// Package rate implements fixed-window rate limiting over the cache layer.
//
// # Window semantics
//
// Each (identifier, action) pair owns one counter at
// ratelimit:{identifier}:{action}. The first hit creates the counter with the
// window as its TTL; later hits increment it without touching the TTL. A
// request is allowed while the post-increment count is within the limit.
//
// # What this package must NOT do
//
//   - Decide which identifier an operation is keyed by (the Engine does).
//   - Be imported outside the examauth module.
package rate
