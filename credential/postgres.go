package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrEthical07/examauth"
	"github.com/MrEthical07/examauth/permission"
)

// ErrEmailTaken is returned by Create when the email already has an account.
var ErrEmailTaken = errors.New("email already registered")

type pgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, email, password_hash, role, active, last_login_at`

const (
	findByEmailSQL = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = $1`
	findByIDSQL    = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	touchLoginSQL  = `UPDATE users SET last_login_at = $2 WHERE id = $1`
	insertUserSQL  = `INSERT INTO users (id, email, password_hash, role, active) VALUES ($1, $2, $3, $4, $5)`
)

// PostgresStore implements examauth.CredentialStore over the users table.
type PostgresStore struct {
	pool pgxPool
}

var _ examauth.CredentialStore = (*PostgresStore)(nil)

// NewPostgresStore returns a store over pool. Pass a *pgxpool.Pool in
// production.
func NewPostgresStore(pool pgxPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// FindByEmail matches email case-insensitively.
func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*examauth.Credential, error) {
	return s.find(ctx, findByEmailSQL, strings.ToLower(strings.TrimSpace(email)))
}

func (s *PostgresStore) FindByID(ctx context.Context, userID string) (*examauth.Credential, error) {
	return s.find(ctx, findByIDSQL, userID)
}

func (s *PostgresStore) find(ctx context.Context, query, arg string) (*examauth.Credential, error) {
	var (
		cred      examauth.Credential
		role      string
		lastLogin *time.Time
	)
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&cred.UserID,
		&cred.Email,
		&cred.PasswordHash,
		&role,
		&cred.Active,
		&lastLogin,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, examauth.ErrUserNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	cred.Role, err = permission.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", cred.UserID, err)
	}
	if lastLogin != nil {
		cred.LastLoginAt = *lastLogin
	}
	return &cred, nil
}

// UpdateLastLogin reports ErrUserNotFound when no row matched.
func (s *PostgresStore) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, touchLoginSQL, userID, at.UTC())
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return examauth.ErrUserNotFound
	}
	return nil
}

// Create inserts an account. The email is stored lowercased.
func (s *PostgresStore) Create(ctx context.Context, cred examauth.Credential) error {
	if cred.UserID == "" || cred.Email == "" || cred.PasswordHash == "" {
		return fmt.Errorf("%w: user id, email and password hash are required", examauth.ErrInvalidInput)
	}
	if !cred.Role.Valid() {
		return fmt.Errorf("%w: %q", permission.ErrUnknownRole, string(cred.Role))
	}

	_, err := s.pool.Exec(ctx, insertUserSQL,
		cred.UserID,
		strings.ToLower(strings.TrimSpace(cred.Email)),
		cred.PasswordHash,
		string(cred.Role),
		cred.Active,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}
