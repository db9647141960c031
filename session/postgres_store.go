package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxPool is the subset of *pgxpool.Pool used by PostgresStore.
type pgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

const sessionColumns = `session_id, user_id, refresh_token_id, access_token_id, access_expires_at,
	user_agent, ip_address, created_at, expires_at`

const (
	insertSessionSQL = `INSERT INTO auth_sessions (` + sessionColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	findSessionSQL = `SELECT ` + sessionColumns + ` FROM auth_sessions
	WHERE refresh_token_id = $1 AND expires_at > $2`
	consumeSessionSQL = `DELETE FROM auth_sessions WHERE refresh_token_id = $1
	RETURNING ` + sessionColumns
	deleteSessionSQL      = `DELETE FROM auth_sessions WHERE refresh_token_id = $1`
	deleteUserSessionsSQL = `DELETE FROM auth_sessions WHERE user_id = $1
	RETURNING ` + sessionColumns
	purgeSessionsSQL = `DELETE FROM auth_sessions WHERE expires_at <= $1`
)

// PostgresStore persists sessions in the auth_sessions table.
type PostgresStore struct {
	pool pgxPool
	now  func() time.Time
}

// NewPostgresStore returns a PostgresStore over pool. Pass a *pgxpool.Pool in
// production.
func NewPostgresStore(pool pgxPool, opts ...Option) *PostgresStore {
	o := buildOptions(opts)
	return &PostgresStore{pool: pool, now: o.now}
}

// Create inserts sess. A unique violation on refresh_token_id maps to ErrDuplicate.
func (s *PostgresStore) Create(ctx context.Context, sess *Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, insertSessionSQL,
		sess.SessionID,
		sess.UserID,
		sess.RefreshTokenID,
		sess.AccessTokenID,
		sess.AccessExpiresAt,
		sess.UserAgent,
		sess.IPAddress,
		sess.CreatedAt,
		sess.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// FindByRefreshToken returns the unexpired session for refreshTokenID.
func (s *PostgresStore) FindByRefreshToken(ctx context.Context, refreshTokenID string) (*Session, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx, findSessionSQL, refreshTokenID, s.now()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return sess, nil
}

// Consume deletes the row with DELETE ... RETURNING. Row-level locking makes
// concurrent consumers of the same id see the row at most once.
func (s *PostgresStore) Consume(ctx context.Context, refreshTokenID string) (*Session, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx, consumeSessionSQL, refreshTokenID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if sess.Expired(s.now()) {
		return nil, ErrExpired
	}
	return sess, nil
}

// DeleteByRefreshToken removes the row and reports whether one existed.
func (s *PostgresStore) DeleteByRefreshToken(ctx context.Context, refreshTokenID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, deleteSessionSQL, refreshTokenID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteAllForUser removes and returns every session row of userID.
func (s *PostgresStore) DeleteAllForUser(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := s.pool.Query(ctx, deleteUserSessionsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	deleted := make([]*Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		deleted = append(deleted, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return deleted, nil
}

// PurgeExpired deletes every row whose expires_at has passed.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, purgeSessionsSQL, s.now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}

// Ping checks database availability.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var sess Session
	if err := row.Scan(
		&sess.SessionID,
		&sess.UserID,
		&sess.RefreshTokenID,
		&sess.AccessTokenID,
		&sess.AccessExpiresAt,
		&sess.UserAgent,
		&sess.IPAddress,
		&sess.CreatedAt,
		&sess.ExpiresAt,
	); err != nil {
		return nil, err
	}
	return &sess, nil
}
