package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const createSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
local ttl = tonumber(ARGV[2])
redis.call("SET", KEYS[1], ARGV[1], "PX", ttl)
redis.call("SADD", KEYS[2], ARGV[3])
if redis.call("PTTL", KEYS[2]) < ttl then
  redis.call("PEXPIRE", KEYS[2], ttl)
end
return 1
`

var createSessionLua = redis.NewScript(createSessionScript)

// RedisStore keeps sessions as binary blobs under {prefix}:{refreshTokenID}
// with a TTL equal to their remaining lifetime, plus a per-user index set
// under {prefix}-user:{userID}.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore returns a RedisStore over client.
func NewRedisStore(client redis.UniversalClient, opts ...Option) *RedisStore {
	o := buildOptions(opts)
	return &RedisStore{redis: client, prefix: o.prefix, now: o.now}
}

func (s *RedisStore) key(refreshTokenID string) string {
	return s.prefix + ":" + refreshTokenID
}

func (s *RedisStore) userKey(userID string) string {
	return s.prefix + "-user:" + userID
}

// Create stores sess with a TTL of its remaining lifetime.
func (s *RedisStore) Create(ctx context.Context, sess *Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return errors.Join(ErrInvalidSession, errors.New("session already expired"))
	}

	data, err := Encode(sess)
	if err != nil {
		return err
	}

	created, err := createSessionLua.Run(ctx, s.redis,
		[]string{s.key(sess.RefreshTokenID), s.userKey(sess.UserID)},
		data, ttl.Milliseconds(), sess.RefreshTokenID,
	).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if created == 0 {
		return ErrDuplicate
	}
	return nil
}

// FindByRefreshToken reads a session without modifying it.
func (s *RedisStore) FindByRefreshToken(ctx context.Context, refreshTokenID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(refreshTokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt session blob: %v", ErrUnavailable, err)
	}
	if sess.Expired(s.now()) {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Consume removes the session with GETDEL so only one caller can observe it.
func (s *RedisStore) Consume(ctx context.Context, refreshTokenID string) (*Session, error) {
	sess, err := s.take(ctx, refreshTokenID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotFound
	}
	if sess.Expired(s.now()) {
		return nil, ErrExpired
	}
	return sess, nil
}

// DeleteByRefreshToken removes the session and reports whether it existed.
func (s *RedisStore) DeleteByRefreshToken(ctx context.Context, refreshTokenID string) (bool, error) {
	sess, err := s.take(ctx, refreshTokenID)
	if err != nil {
		return false, err
	}
	return sess != nil, nil
}

func (s *RedisStore) take(ctx context.Context, refreshTokenID string) (*Session, error) {
	data, err := s.redis.GetDel(ctx, s.key(refreshTokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt session blob: %v", ErrUnavailable, err)
	}
	if err := s.redis.SRem(ctx, s.userKey(sess.UserID), refreshTokenID).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return sess, nil
}

// DeleteAllForUser removes every session indexed for userID.
//
// The index is read before the blobs are deleted, so a session created for the
// same user between the two steps survives this call.
func (s *RedisStore) DeleteAllForUser(ctx context.Context, userID string) ([]*Session, error) {
	userKey := s.userKey(userID)

	ids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return []*Session{}, nil
	}

	cmds := make([]*redis.StringCmd, len(ids))
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.GetDel(ctx, s.key(id))
		}
		pipe.SRem(ctx, userKey, toAny(ids)...)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	deleted := make([]*Session, 0, len(ids))
	var corrupt *CorruptError
	for _, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, cmdErr)
		}
		sess, decErr := Decode(data)
		if decErr != nil {
			if corrupt == nil {
				corrupt = &CorruptError{UserID: userID, Err: decErr}
			}
			corrupt.Skipped++
			continue
		}
		deleted = append(deleted, sess)
	}
	if corrupt != nil {
		return deleted, corrupt
	}
	return deleted, nil
}

// PurgeExpired prunes user-index entries whose session blob has already
// expired out of Redis. Blobs themselves expire natively.
func (s *RedisStore) PurgeExpired(ctx context.Context) (int, error) {
	var (
		cursor uint64
		pruned int
	)
	pattern := s.prefix + "-user:*"

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return pruned, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		for _, userKey := range keys {
			n, err := s.pruneIndex(ctx, userKey)
			if err != nil {
				return pruned, err
			}
			pruned += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return pruned, nil
}

func (s *RedisStore) pruneIndex(ctx context.Context, userKey string) (int, error) {
	ids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.redis.Pipeline()
	exists := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		exists[i] = pipe.Exists(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	stale := make([]any, 0)
	for i, cmd := range exists {
		if cmd.Val() == 0 {
			stale = append(stale, ids[i])
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := s.redis.SRem(ctx, userKey, stale...).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return len(stale), nil
}

// ActiveSessionCount returns the number of indexed sessions for userID.
func (s *RedisStore) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	count, err := s.redis.SCard(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(count), nil
}

// Ping checks Redis availability.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
