// Package httpapi exposes examauth.Engine over HTTP with gin.
//
// Routes:
//
//	POST   /auth/login          email + password (+ otpCode) -> token pair or 202 otpRequired
//	POST   /auth/refresh        refreshToken -> rotated token pair
//	POST   /auth/logout         refreshToken, requires an access token
//	POST   /auth/logout-all     requires an access token
//	GET    /auth/me             claims of the caller
//	POST   /auth/otp/generate   email + purpose
//	POST   /auth/otp/verify     email + code + purpose
//	GET    /auth/otp/status     email + purpose, rate limited per client IP
//	DELETE /auth/otp            purpose; the caller's own challenge, or ?email= with users.manage
//	GET    /healthz
//
// OTP routes answer with the engine's OTPResult, so clients render the Spanish
// message as returned.
package httpapi
