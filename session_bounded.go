package examauth

import (
	"context"
	"time"

	"github.com/MrEthical07/examauth/session"
)

// boundedSessionStore applies the configured per-operation timeout to every
// session store call.
type boundedSessionStore struct {
	session.Store
	timeout time.Duration
}

func (s *boundedSessionStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *boundedSessionStore) Create(ctx context.Context, sess *session.Session) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.Store.Create(ctx, sess)
}

func (s *boundedSessionStore) FindByRefreshToken(ctx context.Context, refreshTokenID string) (*session.Session, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.Store.FindByRefreshToken(ctx, refreshTokenID)
}

func (s *boundedSessionStore) Consume(ctx context.Context, refreshTokenID string) (*session.Session, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.Store.Consume(ctx, refreshTokenID)
}

func (s *boundedSessionStore) DeleteByRefreshToken(ctx context.Context, refreshTokenID string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.Store.DeleteByRefreshToken(ctx, refreshTokenID)
}

func (s *boundedSessionStore) DeleteAllForUser(ctx context.Context, userID string) ([]*session.Session, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.Store.DeleteAllForUser(ctx, userID)
}

// PurgeExpired is not bounded; it may scan the whole store.
func (s *boundedSessionStore) PurgeExpired(ctx context.Context) (int, error) {
	return s.Store.PurgeExpired(ctx)
}

func (s *boundedSessionStore) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.Store.Ping(ctx)
}
