// Package internal contains helper utilities private to examauth.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - metrics: lock-free counters
//   - rate: fixed-window rate limiting over the cache layer
//   - stores: OTP challenge and blacklist records
//
// # What this package must NOT do
//
//   - Export types that appear in the public examauth API.
//   - Be imported by any package outside the examauth module.
package internal
