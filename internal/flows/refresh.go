package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/examauth/jwt"
	"github.com/MrEthical07/examauth/session"
)

// RefreshFailureKind classifies refresh failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureRateLimited
	// RefreshFailureSessionNotFound covers missing, expired and already
	// rotated sessions.
	RefreshFailureSessionNotFound
	RefreshFailureSessionMismatch
	RefreshFailureStore
	RefreshFailureAccountLookup
	RefreshFailureAccountInactive
	RefreshFailureIssue
	RefreshFailurePersist
)

// RefreshResult carries either the new pair and session or failure metadata.
type RefreshResult struct {
	Failure  RefreshFailureKind
	Err      error
	UserID   string
	Previous *session.Session
	Session  *session.Session
	Pair     jwt.Pair
}

type RefreshSessionStore interface {
	Consume(ctx context.Context, refreshTokenID string) (*session.Session, error)
	Create(ctx context.Context, sess *session.Session) error
}

// RefreshDeps captures refresh dependencies. CheckRate and RevokeAccess are
// optional.
type RefreshDeps struct {
	ParseRefresh    func(string) (*jwt.Claims, error)
	CheckRate       func(ctx context.Context, userID string) error
	SessionStore    RefreshSessionStore
	LoadAccount     func(ctx context.Context, userID string) (*Account, error)
	AccountNotFound error
	Issue           func(jwt.Subject) (jwt.Pair, error)
	NewSession      func(ctx context.Context, prev *session.Session, pair jwt.Pair) *session.Session
	RevokeAccess    func(ctx context.Context, jti string, expiresAt time.Time) error
	Warn            func(msg string, err error)
}

// RunRefresh exchanges a refresh token for a new pair. The presented token's
// session is consumed before anything else is checked, so a token is usable
// at most once even when requests race.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	claims, err := deps.ParseRefresh(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}
	userID := claims.Subject

	if deps.CheckRate != nil {
		if err := deps.CheckRate(ctx, userID); err != nil {
			return RefreshResult{Failure: RefreshFailureRateLimited, Err: err, UserID: userID}
		}
	}

	prev, err := deps.SessionStore.Consume(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrExpired) {
			return RefreshResult{Failure: RefreshFailureSessionNotFound, Err: err, UserID: userID}
		}
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: userID}
	}
	if prev.UserID != userID {
		return RefreshResult{Failure: RefreshFailureSessionMismatch, UserID: userID, Previous: prev}
	}

	account, err := deps.LoadAccount(ctx, userID)
	if err != nil {
		if deps.AccountNotFound != nil && errors.Is(err, deps.AccountNotFound) {
			return RefreshResult{Failure: RefreshFailureAccountInactive, Err: err, UserID: userID, Previous: prev}
		}
		return RefreshResult{Failure: RefreshFailureAccountLookup, Err: err, UserID: userID, Previous: prev}
	}
	if !account.Active || !account.Role.Valid() {
		return RefreshResult{Failure: RefreshFailureAccountInactive, UserID: userID, Previous: prev}
	}

	pair, err := deps.Issue(jwt.Subject{UserID: account.UserID, Role: account.Role})
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, UserID: userID, Previous: prev}
	}

	next := deps.NewSession(ctx, prev, pair)
	if err := deps.SessionStore.Create(ctx, next); err != nil {
		return RefreshResult{Failure: RefreshFailurePersist, Err: err, UserID: userID, Previous: prev}
	}

	// Only the newest access token of a rotation chain stays usable.
	if deps.RevokeAccess != nil && prev.AccessTokenID != "" {
		if err := deps.RevokeAccess(ctx, prev.AccessTokenID, prev.AccessExpiresAt); err != nil && deps.Warn != nil {
			deps.Warn("revoke superseded access token failed", err)
		}
	}

	return RefreshResult{
		UserID:   userID,
		Previous: prev,
		Session:  next,
		Pair:     pair,
	}
}
