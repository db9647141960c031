package examauth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/examauth/cache"
	"github.com/MrEthical07/examauth/internal/flows"
	"github.com/MrEthical07/examauth/internal/rate"
	"github.com/MrEthical07/examauth/internal/stores"
	"github.com/MrEthical07/examauth/jwt"
	"github.com/MrEthical07/examauth/permission"
	"github.com/MrEthical07/examauth/session"
)

// Engine runs the authentication use cases. It is safe for concurrent use
// once built and holds no mutable state of its own beyond counters.
type Engine struct {
	config Config
	logger *zap.Logger
	now    func() time.Time

	tokens      *jwt.Manager
	cache       *cache.Client
	limiter     *rate.Limiter
	otp         *stores.OTPStore
	blacklist   *stores.Blacklist
	sessions    session.Store
	credentials CredentialStore
	passwords   PasswordVerifier
	dummyHash   string
	notifier    Notifier
	roles       *permission.RoleManager

	flows   flows.Service
	audit   *auditDispatcher
	metrics *Metrics
	effects *effectRunner
	reaper  *session.Reaper
}

// Close stops the reaper, waits for scheduled side effects and drains the
// audit buffer. Connection handles passed to the Builder are left open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.reaper != nil {
		e.reaper.Stop()
	}
	e.effects.Close()
	e.audit.Close()
}

// Ping reports whether the cache layer and session store answer.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.cache == nil {
		return ErrEngineNotReady
	}
	err := errors.Join(e.cache.Ping(ctx), e.sessions.Ping(ctx))
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// AuditDropped returns how many audit events the dispatcher has dropped.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters and
// latency histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return e.metrics.Snapshot()
}

func (e *Engine) ready() bool {
	return e != nil && e.tokens != nil && e.flows.Initialized()
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

func (e *Engine) observe(id MetricID, start time.Time) {
	e.metrics.Observe(id, time.Since(start))
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e.audit == nil {
		return
	}
	event.Timestamp = e.now()
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// checkRate applies the policy for action to identifier. Actions without a
// policy pass. A limiter that cannot answer rejects the request.
func (e *Engine) checkRate(ctx context.Context, identifier string, action rate.Action) error {
	if _, ok := e.limiter.Policy(action); !ok {
		return nil
	}
	d, err := e.limiter.Allow(ctx, identifier, action)
	if err != nil {
		e.metricInc(MetricDownstreamFailure)
		e.logger.Error("rate limiter unavailable", zap.String("action", string(action)), zap.Error(err))
		return unavailable(err)
	}
	if d.Allowed {
		return nil
	}

	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, AuditEvent{
		EventType: EventRateLimited,
		Error:     ErrRateLimited.Error(),
		Metadata:  map[string]string{"action": string(action), "retry_after": d.RetryAfter.String()},
	})
	return &RateLimitError{Action: action, RetryAfter: d.RetryAfter}
}

// revokeAccess blacklists jti for the rest of its lifetime.
func (e *Engine) revokeAccess(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	revoked, err := e.blacklist.Revoke(ctx, jti, expiresAt)
	if err != nil {
		e.metricInc(MetricDownstreamFailure)
		return false, err
	}
	if revoked {
		e.metricInc(MetricTokenRevoked)
	}
	return revoked, nil
}

// startSession issues a token pair for cred and persists its session.
func (e *Engine) startSession(ctx context.Context, cred *Credential) (*TokenPair, *session.Session, error) {
	pair, err := e.tokens.Issue(jwt.Subject{UserID: cred.UserID, Role: cred.Role})
	if err != nil {
		return nil, nil, err
	}

	sess := &session.Session{
		SessionID:       uuid.NewString(),
		UserID:          cred.UserID,
		RefreshTokenID:  pair.Refresh.ID,
		AccessTokenID:   pair.Access.ID,
		AccessExpiresAt: pair.Access.ExpiresAt,
		UserAgent:       userAgentFromContext(ctx),
		IPAddress:       clientIPFromContext(ctx),
		CreatedAt:       pair.Refresh.IssuedAt,
		ExpiresAt:       pair.Refresh.ExpiresAt,
	}
	if err := e.sessions.Create(ctx, sess); err != nil {
		return nil, nil, e.sessionError(err)
	}
	e.metricInc(MetricSessionCreated)
	return e.tokenPair(pair), sess, nil
}

func (e *Engine) sessionError(err error) error {
	if errors.Is(err, session.ErrDuplicate) {
		return errors.Join(ErrDuplicateSession, err)
	}
	e.metricInc(MetricDownstreamFailure)
	e.logger.Error("session store failure", zap.Error(err))
	return unavailable(err)
}

func (e *Engine) tokenPair(pair jwt.Pair) *TokenPair {
	return &TokenPair{
		AccessToken:  pair.Access.Value,
		RefreshToken: pair.Refresh.Value,
		TokenType:    TokenType,
		ExpiresIn:    int64(e.tokens.AccessTTL() / time.Second),
	}
}

// buildFlows wires the flow dependency sets against the engine's components.
func (e *Engine) buildFlows() flows.Service {
	var refreshRate func(context.Context, string) error
	if _, ok := e.limiter.Policy(rate.ActionRefresh); ok {
		refreshRate = func(ctx context.Context, userID string) error {
			return e.checkRate(ctx, userID, rate.ActionRefresh)
		}
	}

	return flows.New(flows.Deps{
		Refresh: flows.RefreshDeps{
			ParseRefresh:    e.tokens.ParseRefresh,
			CheckRate:       refreshRate,
			SessionStore:    e.sessions,
			LoadAccount:     e.loadAccount,
			AccountNotFound: ErrUserNotFound,
			Issue:           e.tokens.Issue,
			NewSession:      e.rotatedSession,
			RevokeAccess: func(ctx context.Context, jti string, expiresAt time.Time) error {
				_, err := e.revokeAccess(ctx, jti, expiresAt)
				return err
			},
			Warn: func(msg string, err error) {
				e.metricInc(MetricBestEffortFailure)
				e.logger.Warn(msg, zap.Error(err))
			},
		},
		Logout: flows.LogoutDeps{
			ParseRefresh: e.tokens.ParseRefreshAllowExpired,
			SessionStore: e.sessions,
			RevokeAccess: e.revokeAccess,
		},
		Authenticate: flows.AuthenticateDeps{
			ExtractID:     jwt.ExtractID,
			IsRevoked:     e.blacklist.IsRevoked,
			ParseAccess:   e.tokens.ParseAccess,
			AccountActive: e.accountActive,
		},
	})
}

func (e *Engine) loadAccount(ctx context.Context, userID string) (*flows.Account, error) {
	cred, err := e.credentials.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &flows.Account{UserID: cred.UserID, Role: cred.Role, Active: cred.Active}, nil
}

// rotatedSession carries the identity of prev over to the session of pair,
// refreshing client metadata when the request supplies it.
func (e *Engine) rotatedSession(ctx context.Context, prev *session.Session, pair jwt.Pair) *session.Session {
	next := &session.Session{
		SessionID:       uuid.NewString(),
		UserID:          prev.UserID,
		RefreshTokenID:  pair.Refresh.ID,
		AccessTokenID:   pair.Access.ID,
		AccessExpiresAt: pair.Access.ExpiresAt,
		UserAgent:       prev.UserAgent,
		IPAddress:       prev.IPAddress,
		CreatedAt:       pair.Refresh.IssuedAt,
		ExpiresAt:       pair.Refresh.ExpiresAt,
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		next.UserAgent = ua
	}
	if ip := clientIPFromContext(ctx); ip != "" {
		next.IPAddress = ip
	}
	return next
}
