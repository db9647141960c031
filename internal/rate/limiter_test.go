package rate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/examauth/cache"
)

func newTestLimiter(t *testing.T, policies map[Action]Policy) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	l, err := New(cache.New(rdb, cache.WithOperationTimeout(time.Second)), policies)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	return l, mr
}

func TestCheckFixedWindow(t *testing.T) {
	l, mr := newTestLimiter(t, nil)
	ctx := context.Background()
	key := Key("ana@uni.edu", ActionOTPGenerate)

	for i := 1; i <= 3; i++ {
		d, err := l.Check(ctx, key, 3, 5*time.Minute)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if !d.Allowed || d.Remaining != 3-i {
			t.Fatalf("check %d: %+v", i, d)
		}
	}

	mr.FastForward(time.Minute)
	d, err := l.Check(ctx, key, 3, 5*time.Minute)
	if err != nil {
		t.Fatalf("check 4: %v", err)
	}
	if d.Allowed || d.Remaining != 0 {
		t.Fatalf("fourth request should be rejected: %+v", d)
	}
	if d.RetryAfter != 4*time.Minute {
		t.Fatalf("retry after = %v, want 4m", d.RetryAfter)
	}

	mr.FastForward(4 * time.Minute)
	d, err = l.Check(ctx, key, 3, 5*time.Minute)
	if err != nil || !d.Allowed || d.Remaining != 2 {
		t.Fatalf("new window: %+v, %v", d, err)
	}
	if got := mr.TTL("ratelimit:ana@uni.edu:otp-generate"); got != 5*time.Minute {
		t.Fatalf("key layout or ttl unexpected: %v", got)
	}
}

func TestCheckConcurrentIncrementsAreAtomic(t *testing.T) {
	l, _ := newTestLimiter(t, nil)
	ctx := context.Background()

	const (
		workers = 40
		limit   = 10
	)
	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Check(ctx, Key("10.1.1.1", ActionLogin), limit, time.Minute)
			if err != nil {
				t.Errorf("check: %v", err)
				return
			}
			if d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != limit {
		t.Fatalf("expected exactly %d allowed, got %d", limit, got)
	}
}

func TestAllowUsesPolicies(t *testing.T) {
	l, _ := newTestLimiter(t, map[Action]Policy{
		ActionLogin: {Limit: 1, Window: time.Minute},
	})
	ctx := context.Background()

	if d, err := l.Allow(ctx, "10.0.0.1", ActionLogin); err != nil || !d.Allowed {
		t.Fatalf("first allow: %+v, %v", d, err)
	}
	if d, err := l.Allow(ctx, "10.0.0.1", ActionLogin); err != nil || d.Allowed {
		t.Fatalf("second allow: %+v, %v", d, err)
	}
	if d, err := l.Allow(ctx, "10.0.0.2", ActionLogin); err != nil || !d.Allowed {
		t.Fatalf("other identifier: %+v, %v", d, err)
	}

	if err := l.Reset(ctx, "10.0.0.1", ActionLogin); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if d, err := l.Allow(ctx, "10.0.0.1", ActionLogin); err != nil || !d.Allowed {
		t.Fatalf("after reset: %+v, %v", d, err)
	}

	if _, err := l.Allow(ctx, "x", ActionOTPVerify); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}
}

func TestInvalidPolicies(t *testing.T) {
	if _, err := New(nil, map[Action]Policy{ActionLogin: {Limit: 0, Window: time.Minute}}); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}
	l, _ := newTestLimiter(t, nil)
	if _, err := l.Check(context.Background(), "k", 1, 0); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}
}

func TestCheckUnavailable(t *testing.T) {
	l, mr := newTestLimiter(t, nil)
	mr.Close()
	if _, err := l.Check(context.Background(), "k", 1, time.Minute); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
