package examauth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/examauth/internal/flows"
	"github.com/MrEthical07/examauth/jwt"
)

// Refresh exchanges a refresh token for a new pair. Refresh tokens are single
// use: the presented token's session is consumed, so of several concurrent
// calls with the same token exactly one succeeds.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observe(MetricRefreshLatency, start)

	res := e.flows.Refresh(ctx, refreshToken)
	if res.Failure != flows.RefreshFailureNone {
		err := e.refreshError(res)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, AuditEvent{
			EventType: EventRefreshFailure,
			UserID:    res.UserID,
			Error:     errString(err),
		})
		return TokenPair{}, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, AuditEvent{
		EventType: EventRefreshSuccess,
		UserID:    res.UserID,
		SessionID: res.Session.SessionID,
		Success:   true,
	})
	return *e.tokenPair(res.Pair), nil
}

func (e *Engine) refreshError(res flows.RefreshResult) error {
	switch res.Failure {
	case flows.RefreshFailureDecode:
		return res.Err
	case flows.RefreshFailureRateLimited:
		return res.Err
	case flows.RefreshFailureSessionNotFound:
		e.metricInc(MetricRefreshReplayRejected)
		return ErrInvalidCredentials
	case flows.RefreshFailureSessionMismatch, flows.RefreshFailureAccountInactive:
		return ErrInvalidCredentials
	case flows.RefreshFailureStore, flows.RefreshFailurePersist:
		return e.sessionError(res.Err)
	case flows.RefreshFailureAccountLookup:
		e.metricInc(MetricDownstreamFailure)
		e.logger.Error("credential lookup failed", zap.String("user_id", res.UserID), zap.Error(res.Err))
		return unavailable(res.Err)
	default:
		return res.Err
	}
}

// Logout ends the session of refreshToken on behalf of userID and blacklists
// the access token issued with it for the rest of that token's life. An
// expired refresh token is accepted. Logging out a session that is already
// gone succeeds.
func (e *Engine) Logout(ctx context.Context, refreshToken, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.Logout(ctx, refreshToken, userID)
	switch res.Failure {
	case flows.LogoutFailureNone:
	case flows.LogoutFailureDecode:
		return res.Err
	case flows.LogoutFailureMismatch:
		return ErrInvalidCredentials
	case flows.LogoutFailureStore:
		return e.sessionError(res.Err)
	case flows.LogoutFailureRevoke:
		e.logger.Error("logout could not blacklist access token", zap.String("user_id", userID), zap.Error(res.Err))
		return unavailable(res.Err)
	}

	e.metricInc(MetricLogout)
	if res.Session != nil {
		e.metricInc(MetricSessionInvalidated)
		e.emitAudit(ctx, AuditEvent{
			EventType: EventLogout,
			UserID:    userID,
			SessionID: res.Session.SessionID,
			Success:   true,
		})
	}
	return nil
}

// LogoutAll deletes every session of userID and blacklists the live access
// token of each. It returns the number of sessions removed. When some
// blacklist writes fail the sessions stay deleted and an error wrapping
// ErrDownstreamUnavailable is returned with the count.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, ErrInvalidInput
	}

	res := e.flows.LogoutAll(ctx, userID)
	switch res.Failure {
	case flows.LogoutFailureNone:
	case flows.LogoutFailureStore:
		return 0, e.sessionError(res.Err)
	case flows.LogoutFailureRevoke:
		e.logger.Error("logout-all could not blacklist every access token",
			zap.String("user_id", userID), zap.Int("sessions", res.Deleted), zap.Error(res.Err))
		return res.Deleted, unavailable(res.Err)
	}

	if res.Unreadable > 0 {
		e.logger.Warn("logout-all removed unreadable sessions",
			zap.String("user_id", userID), zap.Int("unreadable", res.Unreadable))
	}

	e.metricInc(MetricLogoutAll)
	for i := 0; i < res.Deleted; i++ {
		e.metricInc(MetricSessionInvalidated)
	}
	e.emitAudit(ctx, AuditEvent{
		EventType: EventLogoutAll,
		UserID:    userID,
		Success:   true,
		Metadata: map[string]string{
			"sessions":   itoa(res.Deleted),
			"revoked":    itoa(res.Revoked),
			"unreadable": itoa(res.Unreadable),
		},
	})
	return res.Deleted, nil
}

// RevokeAccessToken blacklists one access token until it expires. Revoking
// an expired token is a no-op.
func (e *Engine) RevokeAccessToken(ctx context.Context, accessToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	claims, err := e.tokens.ParseAccess(accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil
		}
		return err
	}
	revoked, err := e.revokeAccess(ctx, claims.ID, claims.ExpiresAt.Time)
	if err != nil {
		return unavailable(err)
	}
	if revoked {
		e.emitAudit(ctx, AuditEvent{
			EventType: EventTokenRevoked,
			UserID:    claims.Subject,
			Success:   true,
		})
	}
	return nil
}
