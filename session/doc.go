// Package session persists login sessions keyed by the refresh-token id they
// were issued with.
//
// # Backends
//
// [PostgresStore] is the durable store used in production; the refresh-token
// id carries a unique constraint so a duplicate insert surfaces as
// [ErrDuplicate]. [RedisStore] keeps sessions as compact binary blobs with
// native key expiry. Both satisfy [Store].
//
// # Rotation
//
// [Store.Consume] deletes and returns a session in one atomic step. Refresh
// rotation relies on it: of any number of concurrent consumers of the same
// refresh-token id, exactly one receives the session.
//
// # Architecture boundaries
//
// This package does NOT interpret JWT tokens, evaluate permissions, or enforce
// authentication policy. Those responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import examauth, jwt, or permission (no upward imports).
//   - Store raw tokens. Sessions only reference token ids.
package session
