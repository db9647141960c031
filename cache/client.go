package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrMiss is returned by Get and TTL when the key does not exist.
	ErrMiss = errors.New("cache miss")
	// ErrUnavailable wraps every Redis failure, including timeouts.
	ErrUnavailable = errors.New("cache unavailable")
)

const defaultOperationTimeout = 250 * time.Millisecond

// INCR and the first-write PEXPIRE run in one script so a crash between them
// cannot leave a counter without a TTL.
const incrWithTTLScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`

var incrWithTTLLua = redis.NewScript(incrWithTTLScript)

// Client is a thin Redis wrapper. Every call is bounded by the configured
// operation timeout. It is safe for concurrent use.
type Client struct {
	rdb     redis.UniversalClient
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithOperationTimeout bounds each Redis round trip. Non-positive values keep the default.
func WithOperationTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New returns a Client over rdb.
func New(rdb redis.UniversalClient, opts ...Option) *Client {
	c := &Client{rdb: rdb, timeout: defaultOperationTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Get returns the string value of key or ErrMiss.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	v, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrMiss
		}
		return "", unavailable(err)
	}
	return v, nil
}

// Set stores value under key. A zero ttl stores without expiry.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl < 0 {
		return errors.New("cache: negative ttl")
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()

	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Delete removes keys and returns how many existed.
func (c *Client) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()

	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// Exists reports whether key is present.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

// IncrWithTTL increments key and, when this increment created it, sets ttl.
// Later increments in the same window never extend the TTL.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, errors.New("cache: ttl must be positive")
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()

	count, err := incrWithTTLLua.Run(ctx, c.rdb, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, unavailable(err)
	}
	return count, nil
}

// TTL returns the remaining lifetime of key. It returns ErrMiss when the key is
// absent and 0 when the key has no expiry.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	d, err := c.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	// go-redis passes -2 (missing) and -1 (no expiry) through unscaled.
	switch {
	case d == -2:
		return 0, ErrMiss
	case d < 0:
		return 0, nil
	}
	return d, nil
}

// Run executes a store-owned Lua script. A nil reply is returned as ErrMiss.
func (c *Client) Run(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	res, err := script.Run(ctx, c.rdb, keys, args...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, unavailable(err)
	}
	return res, nil
}

// Ping checks Redis availability.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}
