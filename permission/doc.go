// Package permission defines the closed set of platform roles and the
// permission bitmask each role resolves to.
//
// # Roles
//
// A [Role] is one of [RoleStudent], [RoleTeacher] or [RoleAdmin]. Role strings
// arriving from tokens or the credential store are converted with [ParseRole];
// anything outside the enumeration is rejected instead of silently granted a
// default.
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import examauth, jwt, or session.
//   - Accept roles that are not part of the enumeration.
package permission
