package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/examauth/jwt"
	"github.com/MrEthical07/examauth/session"
)

// LogoutFailureKind classifies logout failures for root-level mapping.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureDecode
	LogoutFailureMismatch
	LogoutFailureStore
	LogoutFailureRevoke
)

type LogoutSessionStore interface {
	Consume(ctx context.Context, refreshTokenID string) (*session.Session, error)
	DeleteAllForUser(ctx context.Context, userID string) ([]*session.Session, error)
}

// LogoutDeps captures logout dependencies. ParseRefresh must accept expired
// but otherwise valid refresh tokens.
type LogoutDeps struct {
	ParseRefresh func(string) (*jwt.Claims, error)
	SessionStore LogoutSessionStore
	RevokeAccess func(ctx context.Context, jti string, expiresAt time.Time) (bool, error)
}

// LogoutResult reports the session that was removed, if any, and whether its
// access token was blacklisted.
type LogoutResult struct {
	Failure LogoutFailureKind
	Err     error
	Session *session.Session
	Revoked bool
}

// RunLogout ends the session of refreshToken. A session that is already gone
// is a success.
func RunLogout(ctx context.Context, refreshToken, userID string, deps LogoutDeps) LogoutResult {
	claims, err := deps.ParseRefresh(refreshToken)
	if err != nil {
		return LogoutResult{Failure: LogoutFailureDecode, Err: err}
	}
	if userID == "" || claims.Subject != userID {
		return LogoutResult{Failure: LogoutFailureMismatch}
	}

	sess, err := deps.SessionStore.Consume(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrExpired) {
			return LogoutResult{}
		}
		return LogoutResult{Failure: LogoutFailureStore, Err: err}
	}

	res := LogoutResult{Session: sess}
	if sess.AccessTokenID != "" {
		res.Revoked, err = deps.RevokeAccess(ctx, sess.AccessTokenID, sess.AccessExpiresAt)
		if err != nil {
			res.Failure, res.Err = LogoutFailureRevoke, err
		}
	}
	return res
}

// LogoutAllResult reports how many sessions were removed and how many live
// access tokens were blacklisted with them.
type LogoutAllResult struct {
	Failure LogoutFailureKind
	Err     error
	Deleted int
	Revoked int
	// Unreadable counts deleted records whose access token could not be
	// recovered for blacklisting.
	Unreadable int
}

// RunLogoutAll removes every session of userID and blacklists the access
// token minted with each. Blacklist failures are joined; the sessions stay
// deleted.
func RunLogoutAll(ctx context.Context, userID string, deps LogoutDeps) LogoutAllResult {
	sessions, err := deps.SessionStore.DeleteAllForUser(ctx, userID)
	var corrupt *session.CorruptError
	if err != nil && !errors.As(err, &corrupt) {
		return LogoutAllResult{Failure: LogoutFailureStore, Err: err}
	}

	res := LogoutAllResult{Deleted: len(sessions)}
	if corrupt != nil {
		res.Unreadable = corrupt.Skipped
		res.Deleted += corrupt.Skipped
	}
	var errs []error
	for _, sess := range sessions {
		if sess.AccessTokenID == "" {
			continue
		}
		revoked, err := deps.RevokeAccess(ctx, sess.AccessTokenID, sess.AccessExpiresAt)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if revoked {
			res.Revoked++
		}
	}
	if len(errs) > 0 {
		res.Failure, res.Err = LogoutFailureRevoke, errors.Join(errs...)
	}
	return res
}
