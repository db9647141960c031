package examauth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/examauth/cache"
	"github.com/MrEthical07/examauth/internal/flows"
)

// Authenticate verifies a bearer token for one request and returns the
// caller's identity. It fails closed: if the blacklist cannot be consulted
// the request is rejected with ErrDownstreamUnavailable.
func (e *Engine) Authenticate(ctx context.Context, bearerToken string) (*UserClaims, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observe(MetricAuthenticateLatency, start)

	res := e.flows.Authenticate(ctx, bearerToken)
	if res.Failure != flows.AuthenticateFailureNone {
		err := e.authenticateError(res)
		e.metricInc(MetricAuthenticateFailure)
		if res.Failure == flows.AuthenticateFailureRevoked || res.Failure == flows.AuthenticateFailureAccountInactive {
			var userID string
			if res.Claims != nil {
				userID = res.Claims.Subject
			}
			e.emitAudit(ctx, AuditEvent{
				EventType: EventAuthenticateDenied,
				UserID:    userID,
				Error:     errString(err),
			})
		}
		return nil, err
	}

	perms, _ := e.roles.Permissions(res.Claims.Role)
	e.metricInc(MetricAuthenticateSuccess)
	return &UserClaims{
		UserID:      res.Claims.Subject,
		Role:        res.Claims.Role,
		Permissions: perms,
		TokenID:     res.Claims.ID,
		ExpiresAt:   res.Claims.ExpiresAt.Time,
	}, nil
}

func (e *Engine) authenticateError(res flows.AuthenticateResult) error {
	switch res.Failure {
	case flows.AuthenticateFailureMalformed:
		return ErrTokenMalformed
	case flows.AuthenticateFailureRevocationUnavailable:
		e.metricInc(MetricDownstreamFailure)
		e.logger.Error("blacklist unavailable, rejecting request", zap.Error(res.Err))
		return unavailable(res.Err)
	case flows.AuthenticateFailureRevoked:
		e.metricInc(MetricBlacklistHit)
		return ErrTokenRevoked
	case flows.AuthenticateFailureToken:
		return res.Err
	case flows.AuthenticateFailureAccountUnavailable:
		e.metricInc(MetricDownstreamFailure)
		e.logger.Error("credential lookup failed", zap.Error(res.Err))
		return unavailable(res.Err)
	case flows.AuthenticateFailureAccountInactive:
		return ErrInvalidCredentials
	default:
		return res.Err
	}
}

func userActiveKey(userID string) string {
	return cache.Key(cache.NamespaceCache, "user-active", userID)
}

// accountActive answers from the short-lived cache entry when present and
// falls back to the credential store. A cache failure is not fatal here; the
// store is authoritative.
func (e *Engine) accountActive(ctx context.Context, userID string) (bool, error) {
	ttl := e.config.UserCache.TTL
	if ttl > 0 {
		v, err := e.cache.Get(ctx, userActiveKey(userID))
		switch {
		case err == nil:
			e.metricInc(MetricUserCacheHit)
			return v == "1", nil
		case errors.Is(err, cache.ErrMiss):
			e.metricInc(MetricUserCacheMiss)
		default:
			e.logger.Warn("user cache unavailable", zap.Error(err))
		}
	}

	active := false
	cred, err := e.credentials.FindByID(ctx, userID)
	switch {
	case err == nil:
		active = cred.Active && cred.Role.Valid()
	case errors.Is(err, ErrUserNotFound):
	default:
		return false, err
	}

	if ttl > 0 {
		if err := e.cache.Set(ctx, userActiveKey(userID), boolFlag(active), ttl); err != nil {
			e.logger.Debug("user cache write failed", zap.Error(err))
		}
	}
	return active, nil
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func itoa(n int) string { return strconv.Itoa(n) }
