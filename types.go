package examauth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/examauth/permission"
)

// TokenType is the scheme clients put in the Authorization header.
const TokenType = "Bearer"

// TokenPair is returned by a successful login or refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expiresIn"`
}

// LoginInput carries one login attempt. OTPCode is only consulted by the
// OTP-gated flows.
type LoginInput struct {
	Email    string
	Password string
	OTPCode  string
}

// LoginResult is either a token pair or a signal that an OTP was sent and
// must be supplied on the next attempt.
type LoginResult struct {
	Tokens      *TokenPair
	OTPRequired bool
	// ExpiresIn is the lifetime of the pending login OTP in seconds.
	ExpiresIn int64
}

// OTPPurpose scopes a challenge. Challenges for different purposes of the
// same email never interfere.
type OTPPurpose string

const (
	OTPPurposeLogin             OTPPurpose = "login"
	OTPPurposePasswordReset     OTPPurpose = "password_reset"
	OTPPurposeEmailVerification OTPPurpose = "email_verification"
)

// ParseOTPPurpose maps s onto the closed purpose set.
func ParseOTPPurpose(s string) (OTPPurpose, error) {
	switch p := OTPPurpose(strings.ToLower(strings.TrimSpace(s))); p {
	case OTPPurposeLogin, OTPPurposePasswordReset, OTPPurposeEmailVerification:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrOTPPurposeInvalid, s)
	}
}

// OTPResult is the user-facing outcome of generating or verifying a code.
// Message is rendered to end users as is.
type OTPResult struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	ExpiresIn         int64  `json:"expiresIn,omitempty"`
	AttemptsRemaining int    `json:"attemptsRemaining,omitempty"`
}

// OTPStatus is a read-only view of an outstanding challenge.
type OTPStatus struct {
	Exists            bool       `json:"exists"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty"`
	AttemptsRemaining int        `json:"attemptsRemaining"`
}

// UserClaims identifies the caller of an authenticated request.
type UserClaims struct {
	UserID      string          `json:"userId"`
	Role        permission.Role `json:"role"`
	Permissions []string        `json:"permissions"`
	TokenID     string          `json:"tokenId"`
	ExpiresAt   time.Time       `json:"expiresAt"`
}

// Can reports whether the claims grant perm.
func (c *UserClaims) Can(perm string) bool {
	if c == nil {
		return false
	}
	for _, p := range c.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Credential is the account record the engine authenticates against.
type Credential struct {
	UserID       string
	Email        string
	PasswordHash string
	Role         permission.Role
	Active       bool
	LastLoginAt  time.Time
}

// CredentialStore is the user repository. The engine never writes to it
// except through UpdateLastLogin.
type CredentialStore interface {
	// FindByEmail returns ErrUserNotFound when no account has email.
	FindByEmail(ctx context.Context, email string) (*Credential, error)
	// FindByID returns ErrUserNotFound when no account has userID.
	FindByID(ctx context.Context, userID string) (*Credential, error)
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}

// OTPDelivery is a request to send a code to its owner.
type OTPDelivery struct {
	Email     string     `json:"email"`
	Purpose   OTPPurpose `json:"purpose"`
	Code      string     `json:"code"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// Notifier delivers OTP codes. Delivery failures are logged and never
// surfaced to the caller.
type Notifier interface {
	Deliver(ctx context.Context, d OTPDelivery) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, d OTPDelivery) error

// Deliver calls f.
func (f NotifierFunc) Deliver(ctx context.Context, d OTPDelivery) error { return f(ctx, d) }

// PasswordVerifier checks a plaintext password against a stored hash.
type PasswordVerifier interface {
	Verify(password, encodedHash string) (bool, error)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
