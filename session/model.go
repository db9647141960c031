package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no live session matches the refresh-token id.
	ErrNotFound = errors.New("session not found")
	// ErrExpired is returned by Consume when the matched session was past its expiry.
	ErrExpired = errors.New("session expired")
	// ErrDuplicate is returned when a session with the same refresh-token id already exists.
	ErrDuplicate = errors.New("duplicate session")
	// ErrUnavailable wraps every backend failure.
	ErrUnavailable = errors.New("session store unavailable")
	// ErrInvalidSession is returned when a session is missing required fields.
	ErrInvalidSession = errors.New("invalid session")
	// ErrCorrupt marks stored records that could not be decoded.
	ErrCorrupt = errors.New("corrupt session record")
)

// CorruptError reports records removed by a bulk delete that could not be
// decoded. The sessions returned alongside it are still valid.
type CorruptError struct {
	UserID  string
	Skipped int
	Err     error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("%v: %d record(s) for user %s: %v", ErrCorrupt, e.Skipped, e.UserID, e.Err)
}

func (e *CorruptError) Is(target error) bool { return target == ErrCorrupt }

func (e *CorruptError) Unwrap() error { return e.Err }

// Session is one login. It is created together with a token pair and ends on
// logout, rotation or expiry.
type Session struct {
	SessionID      string
	UserID         string
	RefreshTokenID string

	// AccessTokenID and AccessExpiresAt describe the access token minted with
	// the refresh token so logout can blacklist it.
	AccessTokenID   string
	AccessExpiresAt time.Time

	UserAgent string
	IPAddress string

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session has reached its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Validate checks the fields every backend requires.
func (s *Session) Validate() error {
	switch {
	case s == nil:
		return ErrInvalidSession
	case s.SessionID == "", s.UserID == "", s.RefreshTokenID == "":
		return ErrInvalidSession
	case !s.ExpiresAt.After(s.CreatedAt):
		return errors.Join(ErrInvalidSession, errors.New("expires_at must be after created_at"))
	}
	return nil
}

// Store is the session persistence contract.
type Store interface {
	// Create persists sess. It returns ErrDuplicate when sess.RefreshTokenID is taken.
	Create(ctx context.Context, sess *Session) error
	// FindByRefreshToken returns the live session for refreshTokenID or ErrNotFound.
	FindByRefreshToken(ctx context.Context, refreshTokenID string) (*Session, error)
	// Consume atomically deletes and returns the session for refreshTokenID.
	// An expired match is deleted and reported as ErrExpired.
	Consume(ctx context.Context, refreshTokenID string) (*Session, error)
	// DeleteByRefreshToken removes the session and reports whether one existed.
	DeleteByRefreshToken(ctx context.Context, refreshTokenID string) (bool, error)
	// DeleteAllForUser removes every session of userID and returns them.
	DeleteAllForUser(ctx context.Context, userID string) ([]*Session, error)
	// PurgeExpired removes expired records and returns how many were removed.
	PurgeExpired(ctx context.Context) (int, error)
	// Ping checks backend availability.
	Ping(ctx context.Context) error
}

// Option configures a store.
type Option func(*options)

type options struct {
	now    func() time.Time
	prefix string
}

// WithClock overrides the clock used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithKeyPrefix sets the Redis key namespace used by [RedisStore].
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, prefix: "session"}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
