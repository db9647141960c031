package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/examauth/cache"
)

// ErrBlacklistUnavailable is returned when the blacklist cannot be read or written.
var ErrBlacklistUnavailable = errors.New("blacklist unavailable")

// Blacklist records revoked access-token ids at blacklist:{jti}. Entries
// live exactly as long as the token they revoke.
type Blacklist struct {
	cache Cache
	now   func() time.Time
}

// NewBlacklist returns a Blacklist over c.
func NewBlacklist(c Cache, now func() time.Time) *Blacklist {
	if now == nil {
		now = time.Now
	}
	return &Blacklist{cache: c, now: now}
}

// BlacklistKey returns the cache key for jti.
func BlacklistKey(jti string) string {
	return cache.Key(cache.NamespaceBlacklist, jti)
}

// Revoke blacklists jti until expiresAt. A token that has already expired is
// not written and Revoke reports false.
func (b *Blacklist) Revoke(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	if jti == "" {
		return false, errors.New("blacklist: empty token id")
	}
	now := b.now()
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return false, nil
	}
	if err := b.cache.Set(ctx, BlacklistKey(jti), strconv.FormatInt(now.Unix(), 10), ttl); err != nil {
		return false, fmt.Errorf("%w: %v", ErrBlacklistUnavailable, err)
	}
	return true, nil
}

// IsRevoked reports whether jti is blacklisted. Callers must treat an error as revoked.
func (b *Blacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	ok, err := b.cache.Exists(ctx, BlacklistKey(jti))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBlacklistUnavailable, err)
	}
	return ok, nil
}
