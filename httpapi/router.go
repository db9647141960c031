package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MrEthical07/examauth"
)

// Service is the engine surface the API needs. *examauth.Engine implements it.
type Service interface {
	Login(ctx context.Context, in examauth.LoginInput) (examauth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (examauth.TokenPair, error)
	Logout(ctx context.Context, refreshToken, userID string) error
	LogoutAll(ctx context.Context, userID string) (int, error)
	Authenticate(ctx context.Context, bearerToken string) (*examauth.UserClaims, error)
	GenerateOTP(ctx context.Context, email string, purpose examauth.OTPPurpose) (examauth.OTPResult, error)
	VerifyOTP(ctx context.Context, email, code string, purpose examauth.OTPPurpose) (examauth.OTPResult, error)
	OTPStatus(ctx context.Context, email string, purpose examauth.OTPPurpose) (examauth.OTPStatus, error)
	RevokeOTP(ctx context.Context, email string, purpose examauth.OTPPurpose) error
	RevokeOwnOTP(ctx context.Context, userID string, purpose examauth.OTPPurpose) error
	Ping(ctx context.Context) error
}

var _ Service = (*examauth.Engine)(nil)

// Options configures the router.
type Options struct {
	Logger *zap.Logger
	// TrustedProxies feeds gin's client IP resolution. Nil trusts no proxy.
	TrustedProxies []string
	// MetricsHandler, when set, is mounted at GET /metrics.
	MetricsHandler http.Handler
}

// NewRouter builds the gin engine serving the auth routes.
func NewRouter(svc Service, opts Options) (*gin.Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, err
	}
	r.Use(recovery(logger), requestLogger(logger.Named("http")), clientInfo())

	h := &handler{svc: svc, logger: logger}

	r.GET("/healthz", h.health)
	if opts.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	auth := r.Group("/auth")
	auth.POST("/login", h.login)
	auth.POST("/refresh", h.refresh)
	auth.POST("/otp/generate", h.generateOTP)
	auth.POST("/otp/verify", h.verifyOTP)
	auth.GET("/otp/status", h.otpStatus)

	authed := auth.Group("", requireAuth(svc))
	authed.POST("/logout", h.logout)
	authed.POST("/logout-all", h.logoutAll)
	authed.GET("/me", h.me)
	authed.DELETE("/otp", h.revokeOTP)

	return r, nil
}
