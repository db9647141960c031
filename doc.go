// Package examauth is the authentication and OTP session subsystem of the exam
// platform. It issues JWT access tokens and single-use rotating refresh
// tokens, keeps sessions in Redis or PostgreSQL and gates logins and
// sensitive actions behind short email OTP codes.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// examauth is the public surface. It exposes [Engine], [Builder], [Config] and
// value types (TokenPair, OTPResult, UserClaims, MetricsSnapshot). Flow
// orchestration, the OTP and blacklist stores and rate limiting live under
// internal/ and are never exported. Connection handles (Redis, pgx pools,
// Kafka clients) are dialed by the caller and handed to the Builder.
//
// # Failure policy
//
// Decisions that protect accounts fail closed: when the blacklist, the rate
// limiter or the session store cannot answer, the request is rejected with an
// error wrapping [ErrDownstreamUnavailable]. Side effects such as OTP
// delivery, last-login bookkeeping and audit events are best effort and never
// change the outcome of the call that scheduled them.
package examauth
