package flows

import (
	"context"
	"strings"

	"github.com/MrEthical07/examauth/jwt"
)

// AuthenticateFailureKind classifies authentication failures for root-level mapping.
type AuthenticateFailureKind int

const (
	AuthenticateFailureNone AuthenticateFailureKind = iota
	AuthenticateFailureMalformed
	AuthenticateFailureRevocationUnavailable
	AuthenticateFailureRevoked
	AuthenticateFailureToken
	AuthenticateFailureAccountUnavailable
	AuthenticateFailureAccountInactive
)

type AuthenticateResult struct {
	Failure AuthenticateFailureKind
	Err     error
	TokenID string
	Claims  *jwt.Claims
}

// AuthenticateDeps captures request-authentication dependencies.
type AuthenticateDeps struct {
	ExtractID     func(string) string
	IsRevoked     func(ctx context.Context, jti string) (bool, error)
	ParseAccess   func(string) (*jwt.Claims, error)
	AccountActive func(ctx context.Context, userID string) (bool, error)
}

// StripBearer removes an optional case-insensitive "Bearer " scheme.
func StripBearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

// RunAuthenticate verifies an access token for one request. The blacklist is
// consulted before the signature, and a blacklist that cannot answer rejects
// the request.
func RunAuthenticate(ctx context.Context, bearer string, deps AuthenticateDeps) AuthenticateResult {
	token := StripBearer(bearer)
	jti := deps.ExtractID(token)
	if jti == "" {
		return AuthenticateResult{Failure: AuthenticateFailureMalformed}
	}

	revoked, err := deps.IsRevoked(ctx, jti)
	if err != nil {
		return AuthenticateResult{Failure: AuthenticateFailureRevocationUnavailable, Err: err, TokenID: jti}
	}
	if revoked {
		return AuthenticateResult{Failure: AuthenticateFailureRevoked, TokenID: jti}
	}

	claims, err := deps.ParseAccess(token)
	if err != nil {
		return AuthenticateResult{Failure: AuthenticateFailureToken, Err: err, TokenID: jti}
	}

	active, err := deps.AccountActive(ctx, claims.Subject)
	if err != nil {
		return AuthenticateResult{Failure: AuthenticateFailureAccountUnavailable, Err: err, TokenID: jti, Claims: claims}
	}
	if !active {
		return AuthenticateResult{Failure: AuthenticateFailureAccountInactive, TokenID: jti, Claims: claims}
	}
	return AuthenticateResult{TokenID: jti, Claims: claims}
}
