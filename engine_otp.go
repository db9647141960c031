package examauth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/MrEthical07/examauth/internal"
	"github.com/MrEthical07/examauth/internal/rate"
	"github.com/MrEthical07/examauth/internal/stores"
)

// User-facing OTP messages.
const (
	MsgOTPSent      = "Código enviado"
	MsgOTPVerified  = "Código verificado"
	MsgOTPInvalid   = "Código inválido o expirado"
	MsgOTPExhausted = "Demasiados intentos. Solicita un nuevo código"
	MsgOTPRateLimit = "Demasiadas solicitudes. Intenta más tarde"
	msgOTPIncorrect = "Código incorrecto. Intentos restantes: %d"
)

// GenerateOTP creates a fresh challenge for (email, purpose), replacing any
// outstanding one, and hands the code to the notifier. The code itself is
// never returned.
func (e *Engine) GenerateOTP(ctx context.Context, email string, purpose OTPPurpose) (OTPResult, error) {
	if !e.ready() {
		return OTPResult{}, ErrEngineNotReady
	}
	purpose, err := ParseOTPPurpose(string(purpose))
	if err != nil {
		return OTPResult{}, err
	}
	email = normalizeEmail(email)
	if email == "" {
		return OTPResult{}, fmt.Errorf("%w: email required", ErrInvalidInput)
	}
	return e.generateOTP(ctx, email, purpose)
}

func (e *Engine) generateOTP(ctx context.Context, email string, purpose OTPPurpose) (OTPResult, error) {
	if err := e.checkRate(ctx, email, rate.ActionOTPGenerate); err != nil {
		if errors.Is(err, ErrRateLimited) {
			return OTPResult{Message: MsgOTPRateLimit}, err
		}
		return OTPResult{}, err
	}

	code, err := internal.NewOTP(e.config.OTP.Digits)
	if err != nil {
		return OTPResult{}, err
	}
	expiresAt := e.now().Add(e.config.OTP.TTL)

	err = e.otp.Save(ctx, stores.Challenge{
		Email:       email,
		Purpose:     string(purpose),
		Code:        code,
		ExpiresAt:   expiresAt,
		MaxAttempts: e.config.OTP.MaxAttempts,
	})
	if err != nil {
		e.metricInc(MetricDownstreamFailure)
		e.logger.Error("otp store unavailable", zap.String("purpose", string(purpose)), zap.Error(err))
		return OTPResult{}, unavailable(err)
	}

	delivery := OTPDelivery{Email: email, Purpose: purpose, Code: code, ExpiresAt: expiresAt}
	e.effects.Submit(ctx, SideEffect{
		Name: "deliver_otp",
		Run: func(ctx context.Context) error {
			return e.notifier.Deliver(ctx, delivery)
		},
	})

	e.metricInc(MetricOTPGenerated)
	e.emitAudit(ctx, AuditEvent{
		EventType: EventOTPGenerated,
		Email:     email,
		Success:   true,
		Metadata:  map[string]string{"purpose": string(purpose)},
	})
	return OTPResult{
		Success:   true,
		Message:   MsgOTPSent,
		ExpiresIn: int64(e.config.OTP.TTL.Seconds()),
	}, nil
}

// VerifyOTP checks code against the challenge for (email, purpose). A match
// consumes the challenge. Failures return both a user-facing OTPResult with
// Success=false and an error matching one of the ErrOTP* sentinels.
func (e *Engine) VerifyOTP(ctx context.Context, email, code string, purpose OTPPurpose) (OTPResult, error) {
	if !e.ready() {
		return OTPResult{}, ErrEngineNotReady
	}
	purpose, err := ParseOTPPurpose(string(purpose))
	if err != nil {
		return OTPResult{}, err
	}
	email = normalizeEmail(email)
	if email == "" {
		return OTPResult{}, fmt.Errorf("%w: email required", ErrInvalidInput)
	}

	if ip := clientIPFromContext(ctx); ip != "" {
		if err := e.checkRate(ctx, ip, rate.ActionOTPVerify); err != nil {
			if errors.Is(err, ErrRateLimited) {
				return OTPResult{Message: MsgOTPRateLimit}, err
			}
			return OTPResult{}, err
		}
	}
	return e.verifyOTP(ctx, email, purpose, code)
}

func (e *Engine) verifyOTP(ctx context.Context, email string, purpose OTPPurpose, code string) (OTPResult, error) {
	err := e.otp.Verify(ctx, email, string(purpose), code)

	event := AuditEvent{
		EventType: EventOTPVerified,
		Email:     email,
		Metadata:  map[string]string{"purpose": string(purpose)},
	}
	var (
		res      OTPResult
		mismatch *stores.MismatchError
	)
	switch {
	case err == nil:
		e.metricInc(MetricOTPVerified)
		event.Success = true
		res = OTPResult{Success: true, Message: MsgOTPVerified}
	case errors.As(err, &mismatch):
		e.metricInc(MetricOTPInvalidCode)
		event.EventType = EventOTPFailed
		err = &OTPAttemptError{Remaining: mismatch.Remaining}
		res = OTPResult{
			Message:           fmt.Sprintf(msgOTPIncorrect, mismatch.Remaining),
			AttemptsRemaining: mismatch.Remaining,
		}
	case errors.Is(err, stores.ErrOTPExhausted):
		e.metricInc(MetricOTPExhausted)
		event.EventType = EventOTPExhausted
		err = ErrOTPExhausted
		res = OTPResult{Message: MsgOTPExhausted}
	case errors.Is(err, stores.ErrOTPExpired):
		e.metricInc(MetricOTPExpired)
		event.EventType = EventOTPFailed
		err = ErrOTPExpired
		res = OTPResult{Message: MsgOTPInvalid}
	case errors.Is(err, stores.ErrOTPNotFound):
		event.EventType = EventOTPFailed
		err = ErrOTPNotFound
		res = OTPResult{Message: MsgOTPInvalid}
	default:
		e.metricInc(MetricDownstreamFailure)
		e.logger.Error("otp store unavailable", zap.String("purpose", string(purpose)), zap.Error(err))
		return OTPResult{}, unavailable(err)
	}

	event.Error = errString(err)
	e.emitAudit(ctx, event)
	return res, err
}

// OTPStatus reports whether a live challenge exists. It never changes the
// challenge. Callers with a client IP in ctx are rate limited per IP.
func (e *Engine) OTPStatus(ctx context.Context, email string, purpose OTPPurpose) (OTPStatus, error) {
	if !e.ready() {
		return OTPStatus{}, ErrEngineNotReady
	}
	purpose, err := ParseOTPPurpose(string(purpose))
	if err != nil {
		return OTPStatus{}, err
	}
	email = normalizeEmail(email)
	if email == "" {
		return OTPStatus{}, fmt.Errorf("%w: email required", ErrInvalidInput)
	}
	if ip := clientIPFromContext(ctx); ip != "" {
		if err := e.checkRate(ctx, ip, rate.ActionOTPStatus); err != nil {
			return OTPStatus{}, err
		}
	}

	st, err := e.otp.Status(ctx, email, string(purpose))
	if err != nil {
		e.metricInc(MetricDownstreamFailure)
		return OTPStatus{}, unavailable(err)
	}
	if !st.Exists {
		return OTPStatus{}, nil
	}
	expiresAt := st.ExpiresAt
	return OTPStatus{Exists: true, ExpiresAt: &expiresAt, AttemptsRemaining: st.AttemptsRemaining}, nil
}

// RevokeOTP deletes the challenge for (email, purpose). Revoking a missing
// challenge is not an error.
func (e *Engine) RevokeOTP(ctx context.Context, email string, purpose OTPPurpose) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	purpose, err := ParseOTPPurpose(string(purpose))
	if err != nil {
		return err
	}
	return e.revokeOTP(ctx, normalizeEmail(email), purpose)
}

// RevokeOwnOTP deletes the challenge (purpose) of the account userID. It
// resolves the email through the credential store so callers never name
// someone else's challenge.
func (e *Engine) RevokeOwnOTP(ctx context.Context, userID string, purpose OTPPurpose) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	purpose, err := ParseOTPPurpose(string(purpose))
	if err != nil {
		return err
	}
	cred, err := e.credentials.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidCredentials
		}
		e.metricInc(MetricDownstreamFailure)
		return unavailable(err)
	}
	return e.revokeOTP(ctx, normalizeEmail(cred.Email), purpose)
}

func (e *Engine) revokeOTP(ctx context.Context, email string, purpose OTPPurpose) error {
	if email == "" {
		return fmt.Errorf("%w: email required", ErrInvalidInput)
	}

	existed, err := e.otp.Revoke(ctx, email, string(purpose))
	if err != nil {
		e.metricInc(MetricDownstreamFailure)
		return unavailable(err)
	}
	if existed {
		e.metricInc(MetricOTPRevoked)
		e.emitAudit(ctx, AuditEvent{
			EventType: EventOTPRevoked,
			Email:     email,
			Success:   true,
			Metadata:  map[string]string{"purpose": string(purpose)},
		})
	}
	return nil
}
