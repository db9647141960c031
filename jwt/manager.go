package jwt

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/MrEthical07/examauth/permission"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519 key pairs.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256 shared secrets.
	MethodHS256 SigningMethod = "hs256"
)

// Kind distinguishes access tokens from refresh tokens. It is carried in the typ claim.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

var (
	// ErrTokenExpired is returned when a token's exp is in the past.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for bad signatures, issuer or audience mismatches.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenMalformed is returned when a token cannot be decoded or lacks required claims.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrWrongTokenType is returned when a refresh token is presented as access or vice versa.
	ErrWrongTokenType = errors.New("wrong token type")
)

// Keys holds the key material for one token kind. HS256 uses Private as the
// shared secret; Ed25519 signs with Private and verifies with Public.
type Keys struct {
	Private []byte
	Public  []byte
}

// Config configures a [Manager].
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	AccessKeys    Keys
	RefreshKeys   Keys
	Issuer        string
	Audience      string
	Leeway        time.Duration
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Claims is the typed claim set of every token issued by [Manager].
type Claims struct {
	Role permission.Role `json:"role"`
	Type Kind            `json:"typ"`
	jwt.RegisteredClaims
}

// Subject identifies who a token pair is issued to.
type Subject struct {
	UserID string
	Role   permission.Role
}

// Token is one signed token plus the claims callers need without re-parsing it.
type Token struct {
	Value     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Pair is an access token together with its refresh token.
type Pair struct {
	Access  Token
	Refresh Token
}

// Manager issues and verifies tokens. It is safe for concurrent use.
type Manager struct {
	config Config
	method jwt.SigningMethod

	accessSign    any
	accessVerify  any
	refreshSign   any
	refreshVerify any
}

// NewManager validates cfg and resolves its key material.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("refresh TTL must exceed access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("issuer and audience are required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m := &Manager{config: cfg}
	var err error
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.AccessKeys.Private) < 32 || len(cfg.RefreshKeys.Private) < 32 {
			return nil, errors.New("hs256 secrets must be at least 32 bytes")
		}
		if bytes.Equal(cfg.AccessKeys.Private, cfg.RefreshKeys.Private) {
			return nil, errors.New("access and refresh secrets must differ")
		}
		m.method = jwt.SigningMethodHS256
		m.accessSign, m.accessVerify = cfg.AccessKeys.Private, cfg.AccessKeys.Private
		m.refreshSign, m.refreshVerify = cfg.RefreshKeys.Private, cfg.RefreshKeys.Private
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if m.accessSign, m.accessVerify, err = resolveEdKeys(cfg.AccessKeys); err != nil {
			return nil, fmt.Errorf("access keys: %w", err)
		}
		if m.refreshSign, m.refreshVerify, err = resolveEdKeys(cfg.RefreshKeys); err != nil {
			return nil, fmt.Errorf("refresh keys: %w", err)
		}
		if m.accessVerify.(ed25519.PublicKey).Equal(m.refreshVerify.(ed25519.PublicKey)) {
			return nil, errors.New("access and refresh keys must differ")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return m, nil
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// Issue signs a new access and refresh token for sub. Both tokens get their own jti.
func (m *Manager) Issue(sub Subject) (Pair, error) {
	if strings.TrimSpace(sub.UserID) == "" {
		return Pair{}, errors.New("subject user id is required")
	}
	if !sub.Role.Valid() {
		return Pair{}, fmt.Errorf("%w: %q", permission.ErrUnknownRole, string(sub.Role))
	}

	now := m.config.Now()
	access, err := m.sign(sub, KindAccess, now, m.config.AccessTTL, m.accessSign)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := m.sign(sub, KindRefresh, now, m.config.RefreshTTL, m.refreshSign)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

func (m *Manager) sign(sub Subject, kind Kind, now time.Time, ttl time.Duration, key any) (Token, error) {
	id := uuid.NewString()
	issued := now.Truncate(time.Second)
	expires := issued.Add(ttl)

	claims := Claims{
		Role: sub.Role,
		Type: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   sub.UserID,
			Issuer:    m.config.Issuer,
			Audience:  jwt.ClaimStrings{m.config.Audience},
			IssuedAt:  jwt.NewNumericDate(issued),
			NotBefore: jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(m.method, claims).SignedString(key)
	if err != nil {
		return Token{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return Token{Value: signed, ID: id, IssuedAt: issued, ExpiresAt: expires}, nil
}

// ParseAccess verifies an access token and returns its claims.
func (m *Manager) ParseAccess(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, KindAccess, true)
}

// ParseRefresh verifies a refresh token and returns its claims.
func (m *Manager) ParseRefresh(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, KindRefresh, true)
}

// ParseRefreshAllowExpired verifies a refresh token's signature, issuer and
// audience but accepts it after exp. Logout uses it so an expired refresh
// token can still end its session.
func (m *Manager) ParseRefreshAllowExpired(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, KindRefresh, false)
}

func (m *Manager) parse(tokenStr string, want Kind, checkTime bool) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithTimeFunc(m.config.Now),
	}
	if checkTime {
		options = append(options,
			jwt.WithIssuer(m.config.Issuer),
			jwt.WithAudience(m.config.Audience),
			jwt.WithExpirationRequired(),
		)
		if m.config.Leeway > 0 {
			options = append(options, jwt.WithLeeway(m.config.Leeway))
		}
	} else {
		options = append(options, jwt.WithoutClaimsValidation())
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		claims, ok := t.Claims.(*Claims)
		if !ok {
			return nil, jwt.ErrTokenInvalidClaims
		}
		if claims.Type != want {
			return nil, ErrWrongTokenType
		}
		if want == KindRefresh {
			return m.refreshVerify, nil
		}
		return m.accessVerify, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if !checkTime {
		if claims.Issuer != m.config.Issuer || !slices.Contains(claims.Audience, m.config.Audience) {
			return nil, ErrTokenInvalid
		}
	}
	if err := claims.validate(); err != nil {
		return nil, err
	}
	return claims, nil
}

func (c *Claims) validate() error {
	if c.Subject == "" {
		return fmt.Errorf("%w: missing sub", ErrTokenMalformed)
	}
	if c.ID == "" {
		return fmt.Errorf("%w: missing jti", ErrTokenMalformed)
	}
	if !c.Role.Valid() {
		return fmt.Errorf("%w: missing role", ErrTokenMalformed)
	}
	if c.ExpiresAt == nil {
		return fmt.Errorf("%w: missing exp", ErrTokenMalformed)
	}
	return nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrWrongTokenType):
		return ErrWrongTokenType
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, permission.ErrUnknownRole):
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}

// ExtractID returns the jti of tokenStr without verifying it, or "" when the
// token cannot be decoded. Callers must still verify the token before trusting
// anything else in it.
func ExtractID(tokenStr string) string {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return ""
	}
	return claims.ID
}

func resolveEdKeys(k Keys) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	priv, err := parseEdPrivateKey(k.Private)
	if err != nil {
		return nil, nil, err
	}
	pub := priv.Public().(ed25519.PublicKey)
	if len(k.Public) > 0 {
		configured, err := parseEdPublicKey(k.Public)
		if err != nil {
			return nil, nil, err
		}
		if !configured.Equal(pub) {
			return nil, nil, errors.New("ed25519 public key does not match private key")
		}
	}
	return priv, pub, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
