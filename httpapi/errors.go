package httpapi

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/MrEthical07/examauth"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error ErrorBody `json:"error"`
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, examauth.ErrRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, examauth.ErrInvalidCredentials):
		return "INVALID_CREDENTIALS"
	case errors.Is(err, examauth.ErrTokenRevoked):
		return "TOKEN_REVOKED"
	case errors.Is(err, examauth.ErrTokenExpired):
		return "TOKEN_EXPIRED"
	case errors.Is(err, examauth.ErrTokenInvalid),
		errors.Is(err, examauth.ErrTokenMalformed),
		errors.Is(err, examauth.ErrWrongTokenType):
		return "TOKEN_INVALID"
	case errors.Is(err, examauth.ErrOTPExhausted):
		return "OTP_EXHAUSTED"
	case errors.Is(err, examauth.ErrOTPInvalidCode):
		return "OTP_INCORRECT"
	case errors.Is(err, examauth.ErrOTPExpired), errors.Is(err, examauth.ErrOTPNotFound):
		return "OTP_INVALID"
	case errors.Is(err, examauth.ErrOTPPurposeInvalid), errors.Is(err, examauth.ErrInvalidInput):
		return "VALIDATION_ERROR"
	case errors.Is(err, examauth.ErrDownstreamUnavailable):
		return "UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

// publicMessage never echoes internal error text for server-side failures.
func publicMessage(err error, status int) string {
	if status >= http.StatusInternalServerError {
		return "servicio no disponible"
	}
	return err.Error()
}

func setRetryAfter(c *gin.Context, err error) {
	var rl *examauth.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
	}
}

func abortWithError(c *gin.Context, err error) {
	status := examauth.HTTPStatus(err)
	setRetryAfter(c, err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorResponse{Error: ErrorBody{Code: errorCode(err), Message: publicMessage(err, status)}})
}

func abortUnauthorized(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Header("WWW-Authenticate", examauth.TokenType)
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: ErrorBody{Code: errorCode(err), Message: "no autorizado"}})
}
