package examauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/examauth/cache"
	"github.com/MrEthical07/examauth/internal/rate"
	"github.com/MrEthical07/examauth/internal/stores"
	"github.com/MrEthical07/examauth/jwt"
	"github.com/MrEthical07/examauth/password"
	"github.com/MrEthical07/examauth/permission"
	"github.com/MrEthical07/examauth/session"
)

// Builder assembles an [Engine]. Every connection handle is passed in
// explicitly; the engine never dials anything itself. A Builder can be used
// for one Build only.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	sessions    session.Store
	credentials CredentialStore
	passwords   PasswordVerifier
	notifier    Notifier
	roles       *permission.RoleManager
	auditSink   AuditSink
	logger      *zap.Logger
	now         func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the client backing the cache layer and, unless
// [Builder.WithSessionStore] is used, the session store. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSessionStore replaces the default Redis session store, typically with
// a [session.PostgresStore].
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.sessions = store
	return b
}

// WithCredentialStore sets the user repository. Required.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithPasswordVerifier overrides the default argon2id/bcrypt verifier.
func (b *Builder) WithPasswordVerifier(v PasswordVerifier) *Builder {
	b.passwords = v
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithRoleManager overrides [permission.DefaultRoleManager].
func (b *Builder) WithRoleManager(rm *permission.RoleManager) *Builder {
	b.roles = rm
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for every expiry decision the engine makes.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires every component and starts the
// background workers. The returned Engine must be closed.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- ROLES --------
	roles := b.roles
	if roles == nil {
		roles = permission.DefaultRoleManager()
	}
	if err := roles.Validate(); err != nil {
		return nil, fmt.Errorf("role manager: %w", err)
	}
	roles.Freeze()

	// -------- TOKENS --------
	tokens, err := jwt.NewManager(jwtConfig(cfg.JWT, now))
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}

	// -------- CACHE LAYER --------
	cacheClient := cache.New(b.redis, cache.WithOperationTimeout(cfg.Cache.OperationTimeout))

	policies := make(map[rate.Action]rate.Policy)
	for action, p := range cfg.RateLimit.policies() {
		if p.enabled() {
			policies[action] = rate.Policy{Limit: p.Limit, Window: p.Window}
		}
	}
	limiter, err := rate.New(cacheClient, policies)
	if err != nil {
		return nil, err
	}

	// -------- SESSIONS --------
	sessions := b.sessions
	if sessions == nil {
		sessions = session.NewRedisStore(b.redis, session.WithClock(now))
	}
	sessions = &boundedSessionStore{Store: sessions, timeout: cfg.Session.OperationTimeout}

	// -------- PASSWORDS --------
	argon, err := password.NewVerifier(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("password verifier: %w", err)
	}
	dummyHash, err := argon.Hash("examauth-timing-equalizer")
	if err != nil {
		return nil, fmt.Errorf("password verifier: %w", err)
	}
	passwords := b.passwords
	if passwords == nil {
		passwords = argon
	}

	notifier := b.notifier
	if notifier == nil {
		notifier = NotifierFunc(func(_ context.Context, d OTPDelivery) error {
			logger.Warn("no notifier configured, otp not delivered",
				zap.String("email", d.Email), zap.String("purpose", string(d.Purpose)))
			return nil
		})
	}

	metrics := NewMetrics(cfg.Metrics)

	e := &Engine{
		config:      cfg,
		logger:      logger,
		now:         now,
		tokens:      tokens,
		cache:       cacheClient,
		limiter:     limiter,
		otp:         stores.NewOTPStore(cacheClient, []byte(cfg.OTP.Pepper), now),
		blacklist:   stores.NewBlacklist(cacheClient, now),
		sessions:    sessions,
		credentials: b.credentials,
		passwords:   passwords,
		dummyHash:   dummyHash,
		notifier:    notifier,
		roles:       roles,
		metrics:     metrics,
		audit:       newAuditDispatcher(cfg.Audit, b.auditSink, logger),
		effects:     newEffectRunner(cfg.Effects, logger, metrics),
	}
	e.flows = e.buildFlows()

	if cfg.Session.ReapInterval > 0 {
		e.reaper = session.NewReaper(sessions, cfg.Session.ReapInterval, logger)
		e.reaper.Start(context.Background())
	}

	b.built = true
	return e, nil
}

func jwtConfig(c JWTConfig, now func() time.Time) jwt.Config {
	out := jwt.Config{
		AccessTTL:     c.AccessTTL,
		RefreshTTL:    c.RefreshTTL,
		SigningMethod: jwt.SigningMethod(c.SigningMethod),
		Issuer:        c.Issuer,
		Audience:      c.Audience,
		Leeway:        c.Leeway,
		Now:           now,
	}
	switch out.SigningMethod {
	case jwt.MethodEd25519:
		out.AccessKeys = jwt.Keys{Private: []byte(c.AccessPrivateKey), Public: optionalBytes(c.AccessPublicKey)}
		out.RefreshKeys = jwt.Keys{Private: []byte(c.RefreshPrivateKey), Public: optionalBytes(c.RefreshPublicKey)}
	default:
		out.AccessKeys = jwt.Keys{Private: []byte(c.AccessSecret)}
		out.RefreshKeys = jwt.Keys{Private: []byte(c.RefreshSecret)}
	}
	return out
}

func optionalBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}
