package examauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/examauth/password"
	"github.com/MrEthical07/examauth/permission"
)

const (
	testEmail    = "ana.garcia@uni.edu"
	testPassword = "correct horse battery staple"
	testUserID   = "u-1001"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// plainVerifier stores passwords as "plain:<password>" so tests skip argon2.
type plainVerifier struct{}

func (plainVerifier) Verify(pw, encoded string) (bool, error) {
	if len(encoded) < 6 || encoded[:6] != "plain:" {
		return false, password.ErrMalformedHash
	}
	return encoded[6:] == pw, nil
}

type fakeCredentialStore struct {
	mu         sync.Mutex
	byEmail    map[string]*Credential
	err        error
	lastLogins map[string]time.Time
	findByID   int
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{
		byEmail:    make(map[string]*Credential),
		lastLogins: make(map[string]time.Time),
	}
}

func (s *fakeCredentialStore) add(c Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byEmail[c.Email] = &c
}

func (s *fakeCredentialStore) setActive(userID string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.byEmail {
		if c.UserID == userID {
			c.Active = active
		}
	}
}

func (s *fakeCredentialStore) FindByEmail(_ context.Context, email string) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeCredentialStore) FindByID(_ context.Context, userID string) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findByID++
	if s.err != nil {
		return nil, s.err
	}
	for _, c := range s.byEmail {
		if c.UserID == userID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *fakeCredentialStore) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLogins[userID] = at
	return nil
}

func (s *fakeCredentialStore) lastLogin(userID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.lastLogins[userID]
	return at, ok
}

func (s *fakeCredentialStore) findByIDCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findByID
}

// captureNotifier records delivered codes per email and purpose.
type captureNotifier struct {
	ch chan OTPDelivery
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{ch: make(chan OTPDelivery, 16)}
}

func (n *captureNotifier) Deliver(_ context.Context, d OTPDelivery) error {
	n.ch <- d
	return nil
}

func (n *captureNotifier) next(t *testing.T) OTPDelivery {
	t.Helper()
	select {
	case d := <-n.ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("no otp delivered")
		return OTPDelivery{}
	}
}

type testEnv struct {
	engine   *Engine
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	clock    *fakeClock
	users    *fakeCredentialStore
	notifier *captureNotifier
	audit    *ChannelSink
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = "access-secret-for-tests-0123456789abcdef"
	cfg.JWT.RefreshSecret = "refresh-secret-for-tests-0123456789abcdef"
	cfg.Session.ReapInterval = 0
	cfg.Password = password.Argon2Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	env := &testEnv{
		mr:       mr,
		rdb:      rdb,
		clock:    &fakeClock{now: time.Now().UTC().Truncate(time.Second)},
		users:    newFakeCredentialStore(),
		notifier: newCaptureNotifier(),
		audit:    NewChannelSink(256),
	}
	env.users.add(Credential{
		UserID:       testUserID,
		Email:        testEmail,
		PasswordHash: "plain:" + testPassword,
		Role:         permission.RoleStudent,
		Active:       true,
	})

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(env.users).
		WithPasswordVerifier(plainVerifier{}).
		WithNotifier(env.notifier).
		WithAuditSink(env.audit).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	env.engine = engine

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return env
}

func (env *testEnv) login(t *testing.T) TokenPair {
	t.Helper()
	res, err := env.engine.Login(context.Background(), LoginInput{Email: testEmail, Password: testPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Tokens == nil {
		t.Fatal("login returned no tokens")
	}
	return *res.Tokens
}

func TestBuildRequiresRedisAndCredentials(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).WithCredentialStore(newFakeCredentialStore()).Build(); err == nil {
		t.Fatal("expected error without redis")
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error without credential store")
	}
}

func TestBuildRejectsInvalidConfigAndReuse(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := testConfig()
	cfg.JWT.AccessSecret = ""
	if _, err := New().WithConfig(cfg).WithRedis(rdb).WithCredentialStore(newFakeCredentialStore()).Build(); err == nil {
		t.Fatal("expected validation error")
	}

	b := New().WithConfig(testConfig()).WithRedis(rdb).WithCredentialStore(newFakeCredentialStore())
	e, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected error on second Build")
	}
}

func TestZeroEngineNotReady(t *testing.T) {
	var e *Engine
	ctx := context.Background()

	if _, err := e.Login(ctx, LoginInput{Email: testEmail}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("Login: expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.Authenticate(ctx, "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("Authenticate: expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.GenerateOTP(ctx, testEmail, OTPPurposeLogin); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("GenerateOTP: expected ErrEngineNotReady, got %v", err)
	}
	if err := e.Ping(ctx); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("Ping: expected ErrEngineNotReady, got %v", err)
	}
	e.Close()
}

func TestPing(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	env.mr.Close()
	if err := env.engine.Ping(context.Background()); !errors.Is(err, ErrDownstreamUnavailable) {
		t.Fatalf("expected ErrDownstreamUnavailable, got %v", err)
	}
}
