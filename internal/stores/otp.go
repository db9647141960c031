package stores

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/examauth/cache"
)

var (
	ErrOTPNotFound    = errors.New("otp challenge not found")
	ErrOTPExpired     = errors.New("otp challenge expired")
	ErrOTPExhausted   = errors.New("otp attempts exhausted")
	ErrOTPMismatch    = errors.New("otp code mismatch")
	ErrOTPUnavailable = errors.New("otp store unavailable")
)

const (
	verifyStatusNotFound  int64 = 0
	verifyStatusExpired   int64 = 1
	verifyStatusExhausted int64 = 2
	verifyStatusMismatch  int64 = 3
	verifyStatusMatched   int64 = 4
)

// saveOTPLua replaces any existing challenge for the key.
// KEYS[1] = challenge key
// ARGV[1] = code hash (hex)
// ARGV[2] = expires at (unix ms)
// ARGV[3] = max attempts
// ARGV[4] = ttl (ms)
// ARGV[5] = created at (unix ms)
var saveOTPLua = redis.NewScript(`
redis.call("DEL", KEYS[1])
redis.call("HSET", KEYS[1],
  "code_hash", ARGV[1],
  "expires_at", ARGV[2],
  "attempts", 0,
  "max_attempts", ARGV[3],
  "created_at", ARGV[5])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return 1
`)

// verifyOTPLua performs read, check and update on one challenge atomically.
// KEYS[1] = challenge key
// ARGV[1] = provided code hash (hex)
// ARGV[2] = now (unix ms)
//
// Returns {status, remaining_attempts, stored_hash}.
var verifyOTPLua = redis.NewScript(`
local f = redis.call("HMGET", KEYS[1], "code_hash", "expires_at", "attempts", "max_attempts")
if not f[1] then
  return {0, 0, ""}
end

local expiresAt = tonumber(f[2]) or 0
local attempts = tonumber(f[3]) or 0
local maxAttempts = tonumber(f[4]) or 0
local now = tonumber(ARGV[2])

if now > expiresAt then
  redis.call("DEL", KEYS[1])
  return {1, 0, ""}
end

if attempts >= maxAttempts then
  redis.call("DEL", KEYS[1])
  return {2, 0, ""}
end

if f[1] ~= ARGV[1] then
  attempts = attempts + 1
  if attempts >= maxAttempts then
    redis.call("DEL", KEYS[1])
    return {2, 0, ""}
  end
  redis.call("HSET", KEYS[1], "attempts", attempts)
  return {3, maxAttempts - attempts, ""}
end

redis.call("DEL", KEYS[1])
return {4, maxAttempts - attempts, f[1]}
`)

var statusOTPLua = redis.NewScript(`
return redis.call("HMGET", KEYS[1], "expires_at", "attempts", "max_attempts")
`)

// Challenge is an outstanding OTP for one (email, purpose).
type Challenge struct {
	Email       string
	Purpose     string
	Code        string
	ExpiresAt   time.Time
	MaxAttempts int
}

// ChallengeStatus is a read-only view of a challenge.
type ChallengeStatus struct {
	Exists            bool
	ExpiresAt         time.Time
	Attempts          int
	MaxAttempts       int
	AttemptsRemaining int
}

// MismatchError carries the attempts left after a wrong code.
type MismatchError struct {
	Remaining int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: %d attempts remaining", ErrOTPMismatch, e.Remaining)
}

func (e *MismatchError) Is(target error) bool { return target == ErrOTPMismatch }

// OTPStore persists OTP challenges in the cache layer.
type OTPStore struct {
	cache  Cache
	pepper []byte
	now    func() time.Time
}

// NewOTPStore returns an OTPStore. pepper keys the code HMAC and may be empty.
func NewOTPStore(c Cache, pepper []byte, now func() time.Time) *OTPStore {
	if now == nil {
		now = time.Now
	}
	return &OTPStore{cache: c, pepper: append([]byte(nil), pepper...), now: now}
}

// Key returns the cache key of the challenge for email and purpose.
func Key(email, purpose string) string {
	return cache.Key(cache.NamespaceOTP, email, purpose)
}

func (s *OTPStore) hash(code string) string {
	mac := hmac.New(sha256.New, s.pepper)
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// Save writes ch, replacing any previous challenge for the same email and purpose.
func (s *OTPStore) Save(ctx context.Context, ch Challenge) error {
	if ch.Email == "" || ch.Purpose == "" || ch.Code == "" {
		return errors.New("otp challenge requires email, purpose and code")
	}
	if ch.MaxAttempts <= 0 {
		return errors.New("otp challenge requires positive max attempts")
	}
	now := s.now()
	ttl := ch.ExpiresAt.Sub(now)
	if ttl < time.Millisecond {
		return errors.New("otp challenge already expired")
	}

	_, err := s.cache.Run(ctx, saveOTPLua, []string{Key(ch.Email, ch.Purpose)},
		s.hash(ch.Code),
		ch.ExpiresAt.UnixMilli(),
		ch.MaxAttempts,
		ttl.Milliseconds(),
		now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}
	return nil
}

// Verify checks code against the challenge. A match consumes the challenge.
// A wrong code returns a *MismatchError until the attempt budget is spent,
// after which the challenge is deleted and ErrOTPExhausted is returned.
func (s *OTPStore) Verify(ctx context.Context, email, purpose, code string) error {
	provided := s.hash(code)

	res, err := s.cache.Run(ctx, verifyOTPLua, []string{Key(email, purpose)},
		provided,
		s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}

	reply, ok := res.([]any)
	if !ok || len(reply) != 3 {
		return fmt.Errorf("%w: unexpected lua reply %T", ErrOTPUnavailable, res)
	}
	status, _ := reply[0].(int64)
	remaining, _ := reply[1].(int64)
	stored, _ := reply[2].(string)

	switch status {
	case verifyStatusNotFound:
		return ErrOTPNotFound
	case verifyStatusExpired:
		return ErrOTPExpired
	case verifyStatusExhausted:
		return ErrOTPExhausted
	case verifyStatusMismatch:
		return &MismatchError{Remaining: int(remaining)}
	case verifyStatusMatched:
		// Lua string comparison is not constant-time.
		if subtle.ConstantTimeCompare([]byte(stored), []byte(provided)) != 1 {
			return &MismatchError{Remaining: int(remaining)}
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown verify status %d", ErrOTPUnavailable, status)
	}
}

// Revoke deletes the challenge. It reports whether one existed.
func (s *OTPStore) Revoke(ctx context.Context, email, purpose string) (bool, error) {
	n, err := s.cache.Delete(ctx, Key(email, purpose))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}
	return n > 0, nil
}

// Status reports the challenge state without modifying it. A challenge past
// its expiry reports Exists=false.
func (s *OTPStore) Status(ctx context.Context, email, purpose string) (ChallengeStatus, error) {
	res, err := s.cache.Run(ctx, statusOTPLua, []string{Key(email, purpose)})
	if err != nil {
		return ChallengeStatus{}, fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}
	fields, ok := res.([]any)
	if !ok || len(fields) != 3 || fields[0] == nil {
		return ChallengeStatus{}, nil
	}

	expiresMs, err1 := parseInt(fields[0])
	attempts, err2 := parseInt(fields[1])
	maxAttempts, err3 := parseInt(fields[2])
	if err := errors.Join(err1, err2, err3); err != nil {
		return ChallengeStatus{}, fmt.Errorf("%w: corrupt challenge: %v", ErrOTPUnavailable, err)
	}

	expiresAt := time.UnixMilli(expiresMs)
	if s.now().After(expiresAt) {
		return ChallengeStatus{}, nil
	}
	remaining := int(maxAttempts - attempts)
	if remaining < 0 {
		remaining = 0
	}
	return ChallengeStatus{
		Exists:            true,
		ExpiresAt:         expiresAt,
		Attempts:          int(attempts),
		MaxAttempts:       int(maxAttempts),
		AttemptsRemaining: remaining,
	}, nil
}

func parseInt(v any) (int64, error) {
	switch t := v.(type) {
	case string:
		return strconv.ParseInt(t, 10, 64)
	case int64:
		return t, nil
	default:
		return 0, fmt.Errorf("unexpected field type %T", v)
	}
}
