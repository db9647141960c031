// Package jwt issues and verifies the access and refresh tokens handed to
// platform clients.
//
// Access and refresh tokens are signed with independent keys and carry a
// typ claim, so a refresh token can never be presented as an access token.
// Every token gets a fresh UUIDv4 jti which revocation and session lookup key
// on.
package jwt
