package examauth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/examauth/internal/rate"
)

// Login authenticates a user according to the configured [LoginFlow]. In the
// OTP-gated flows a call without OTPCode sends a login code and returns
// LoginResult{OTPRequired: true}; the caller repeats the call with the code.
//
// Credential problems of any kind are reported as ErrInvalidCredentials.
// At most one session is created per successful call.
func (e *Engine) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	if !e.ready() {
		return LoginResult{}, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observe(MetricLoginLatency, start)

	email := normalizeEmail(in.Email)
	if email == "" {
		return e.loginFailed(ctx, email, ErrInvalidCredentials)
	}

	identifier := clientIPFromContext(ctx)
	if identifier == "" {
		identifier = "email:" + email
	}
	if err := e.checkRate(ctx, identifier, rate.ActionLogin); err != nil {
		return e.loginFailed(ctx, email, err)
	}

	var (
		cred *Credential
		err  error
	)
	switch e.config.Login.Flow {
	case LoginOTPAfterPassword:
		if cred, err = e.checkCredentials(ctx, email, in.Password); err != nil {
			return e.loginFailed(ctx, email, err)
		}
		if in.OTPCode == "" {
			return e.requireLoginOTP(ctx, email, cred.UserID)
		}
		if _, err = e.verifyOTP(ctx, email, OTPPurposeLogin, in.OTPCode); err != nil {
			return e.loginFailed(ctx, email, err)
		}
	case LoginOTPFirst:
		if in.OTPCode == "" {
			return e.requireLoginOTP(ctx, email, "")
		}
		if _, err = e.verifyOTP(ctx, email, OTPPurposeLogin, in.OTPCode); err != nil {
			return e.loginFailed(ctx, email, err)
		}
		if cred, err = e.checkCredentials(ctx, email, in.Password); err != nil {
			return e.loginFailed(ctx, email, err)
		}
	default:
		if cred, err = e.checkCredentials(ctx, email, in.Password); err != nil {
			return e.loginFailed(ctx, email, err)
		}
	}

	tokens, sess, err := e.startSession(ctx, cred)
	if err != nil {
		return e.loginFailed(ctx, email, err)
	}

	userID := cred.UserID
	at := e.now()
	e.effects.Submit(ctx, SideEffect{
		Name: "update_last_login",
		Run: func(ctx context.Context) error {
			return e.credentials.UpdateLastLogin(ctx, userID, at)
		},
	})

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType: EventLoginSuccess,
		UserID:    userID,
		Email:     email,
		SessionID: sess.SessionID,
		Success:   true,
	})
	return LoginResult{Tokens: tokens}, nil
}

// checkCredentials resolves email to an active account whose password hash
// matches. Unknown emails still pay for one hash verification.
func (e *Engine) checkCredentials(ctx context.Context, email, pw string) (*Credential, error) {
	cred, err := e.credentials.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_, _ = e.passwords.Verify(pw, e.dummyHash)
			return nil, ErrInvalidCredentials
		}
		e.metricInc(MetricDownstreamFailure)
		e.logger.Error("credential lookup failed", zap.Error(err))
		return nil, unavailable(err)
	}

	ok, err := e.passwords.Verify(pw, cred.PasswordHash)
	if err != nil {
		e.logger.Warn("stored password hash unusable", zap.String("user_id", cred.UserID), zap.Error(err))
		return nil, ErrInvalidCredentials
	}
	if !ok || !cred.Active {
		return nil, ErrInvalidCredentials
	}
	if !cred.Role.Valid() {
		e.logger.Error("account has unknown role", zap.String("user_id", cred.UserID), zap.String("role", string(cred.Role)))
		return nil, ErrInvalidCredentials
	}
	return cred, nil
}

func (e *Engine) requireLoginOTP(ctx context.Context, email, userID string) (LoginResult, error) {
	res, err := e.generateOTP(ctx, email, OTPPurposeLogin)
	if err != nil {
		return e.loginFailed(ctx, email, err)
	}
	e.metricInc(MetricLoginOTPRequired)
	e.emitAudit(ctx, AuditEvent{
		EventType: EventLoginOTPRequired,
		UserID:    userID,
		Email:     email,
		Success:   true,
	})
	return LoginResult{OTPRequired: true, ExpiresIn: res.ExpiresIn}, nil
}

func (e *Engine) loginFailed(ctx context.Context, email string, err error) (LoginResult, error) {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, AuditEvent{
		EventType: EventLoginFailure,
		Email:     email,
		Error:     errString(err),
	})
	return LoginResult{}, err
}
