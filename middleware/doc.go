// Package middleware adapts examauth.Engine to net/http handlers.
//
// [Guard] reads the Authorization header, calls Engine.Authenticate and stores
// the resulting claims with examauth.ContextWithClaims. [RequirePermission] and
// [RequireRole] gate handlers on those claims. [ClientInfo] attaches the
// caller's IP and User-Agent so the engine can rate-limit and record sessions.
//
// Token checks are delegated to the engine. When the blacklist or the
// credential store cannot answer, Guard responds 502 instead of letting the
// request through.
package middleware
