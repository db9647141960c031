package examauth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MrEthical07/examauth/internal/rate"
	"github.com/MrEthical07/examauth/jwt"
)

var (
	// ErrInvalidCredentials covers unknown email, wrong password, inactive
	// accounts and unusable refresh tokens alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned by a CredentialStore for unknown accounts.
	ErrUserNotFound = errors.New("user not found")

	ErrTokenExpired   = jwt.ErrTokenExpired
	ErrTokenInvalid   = jwt.ErrTokenInvalid
	ErrTokenMalformed = jwt.ErrTokenMalformed
	ErrWrongTokenType = jwt.ErrWrongTokenType
	ErrTokenRevoked   = errors.New("token revoked")

	ErrRateLimited = errors.New("rate limited")

	ErrOTPNotFound       = errors.New("otp not found")
	ErrOTPExpired        = errors.New("otp expired")
	ErrOTPExhausted      = errors.New("otp attempts exhausted")
	ErrOTPInvalidCode    = errors.New("otp code incorrect")
	ErrOTPPurposeInvalid = errors.New("invalid otp purpose")
	// ErrOTPRequired signals that a login OTP was issued and must be supplied.
	ErrOTPRequired = errors.New("otp required")

	ErrDuplicateSession = errors.New("duplicate session")
	// ErrDownstreamUnavailable means a store the decision depends on could
	// not answer. Critical checks fail closed with this error.
	ErrDownstreamUnavailable = errors.New("downstream unavailable")
	ErrEngineNotReady        = errors.New("engine not initialized")
	ErrInvalidInput          = errors.New("invalid input")
)

// RateLimitError is returned when an action is throttled.
type RateLimitError struct {
	Action     rate.Action
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: %s retry after %s", ErrRateLimited, e.Action, e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// OTPAttemptError is returned for a wrong code while attempts remain.
type OTPAttemptError struct {
	Remaining int
}

func (e *OTPAttemptError) Error() string {
	return fmt.Sprintf("%s: %d attempts remaining", ErrOTPInvalidCode, e.Remaining)
}

func (e *OTPAttemptError) Is(target error) bool { return target == ErrOTPInvalidCode }

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrDownstreamUnavailable, err)
}

// HTTPStatus maps an engine error to the status an HTTP adapter should send.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrOTPRequired):
		return http.StatusAccepted
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrTokenMalformed),
		errors.Is(err, ErrWrongTokenType),
		errors.Is(err, ErrTokenRevoked):
		return http.StatusUnauthorized
	case errors.Is(err, ErrOTPNotFound),
		errors.Is(err, ErrOTPExpired),
		errors.Is(err, ErrOTPExhausted),
		errors.Is(err, ErrOTPInvalidCode),
		errors.Is(err, ErrOTPPurposeInvalid),
		errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrDownstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
