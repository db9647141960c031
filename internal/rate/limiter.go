package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/examauth/cache"
)

// Action names a rate-limited operation.
type Action string

const (
	ActionLogin       Action = "login"
	ActionOTPGenerate Action = "otp-generate"
	ActionOTPVerify   Action = "otp-verify"
	ActionOTPStatus   Action = "otp-status"
	ActionRefresh     Action = "refresh"
)

// Policy is a limit per window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Validate rejects non-positive limits and windows.
func (p Policy) Validate() error {
	if p.Limit <= 0 || p.Window <= 0 {
		return fmt.Errorf("%w: limit=%d window=%s", ErrInvalidPolicy, p.Limit, p.Window)
	}
	return nil
}

// Decision is the outcome of one Check.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is the remaining window when the request was rejected.
	RetryAfter time.Duration
}

// Counter is the cache capability the limiter needs.
type Counter interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Delete(ctx context.Context, keys ...string) (int64, error)
}

// Limiter enforces fixed-window limits. It is safe for concurrent use.
type Limiter struct {
	counter  Counter
	policies map[Action]Policy
}

// New returns a Limiter with per-action policies. Checks for actions without a
// policy must pass one explicitly through [Limiter.Check].
func New(counter Counter, policies map[Action]Policy) (*Limiter, error) {
	copied := make(map[Action]Policy, len(policies))
	for action, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", action, err)
		}
		copied[action] = p
	}
	return &Limiter{counter: counter, policies: copied}, nil
}

// Key returns the counter key for identifier and action.
func Key(identifier string, action Action) string {
	return cache.Key(cache.NamespaceRateLimit, identifier, string(action))
}

// Check records one hit for key and reports whether it fits in limit per window.
func (l *Limiter) Check(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if err := (Policy{Limit: limit, Window: window}).Validate(); err != nil {
		return Decision{}, err
	}

	count, err := l.counter.IncrWithTTL(ctx, key, window)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	d := Decision{Allowed: count <= int64(limit)}
	if remaining := int64(limit) - count; remaining > 0 {
		d.Remaining = int(remaining)
	}
	if !d.Allowed {
		d.RetryAfter = l.retryAfter(ctx, key, window)
	}
	return d, nil
}

func (l *Limiter) retryAfter(ctx context.Context, key string, window time.Duration) time.Duration {
	ttl, err := l.counter.TTL(ctx, key)
	if err != nil || ttl <= 0 {
		if errors.Is(err, cache.ErrMiss) {
			return 0
		}
		return window
	}
	return ttl
}

// Allow runs Check for identifier under the configured policy for action.
func (l *Limiter) Allow(ctx context.Context, identifier string, action Action) (Decision, error) {
	p, ok := l.policies[action]
	if !ok {
		return Decision{}, fmt.Errorf("%w: no policy for %q", ErrInvalidPolicy, action)
	}
	return l.Check(ctx, Key(identifier, action), p.Limit, p.Window)
}

// Reset clears the counter for identifier and action.
func (l *Limiter) Reset(ctx context.Context, identifier string, action Action) error {
	if _, err := l.counter.Delete(ctx, Key(identifier, action)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Policy returns the configured policy for action.
func (l *Limiter) Policy(action Action) (Policy, bool) {
	p, ok := l.policies[action]
	return p, ok
}
