package examauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/examauth/internal/rate"
	"github.com/MrEthical07/examauth/password"
)

// Config holds every engine setting. It is copied into the engine by
// [Builder.Build] and never modified afterwards.
type Config struct {
	JWT       JWTConfig             `mapstructure:"jwt"`
	Session   SessionConfig         `mapstructure:"session"`
	Cache     CacheConfig           `mapstructure:"cache"`
	OTP       OTPConfig             `mapstructure:"otp"`
	RateLimit RateLimitConfig       `mapstructure:"rate_limit"`
	Login     LoginConfig           `mapstructure:"login"`
	UserCache UserCacheConfig       `mapstructure:"user_cache"`
	Password  password.Argon2Config `mapstructure:"password"`
	Effects   EffectsConfig         `mapstructure:"effects"`
	Audit     AuditConfig           `mapstructure:"audit"`
	Metrics   MetricsConfig         `mapstructure:"metrics"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures token signing. HS256 reads the two secrets; Ed25519
// reads the PEM (or raw) key pairs, public halves optional.
type JWTConfig struct {
	AccessTTL     time.Duration `mapstructure:"access_ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
	SigningMethod string        `mapstructure:"signing_method"` // "hs256" (default) or "ed25519"
	Issuer        string        `mapstructure:"issuer"`
	Audience      string        `mapstructure:"audience"`
	Leeway        time.Duration `mapstructure:"leeway"`

	AccessSecret  string `mapstructure:"access_secret"`
	RefreshSecret string `mapstructure:"refresh_secret"`

	AccessPrivateKey  string `mapstructure:"access_private_key"`
	AccessPublicKey   string `mapstructure:"access_public_key"`
	RefreshPrivateKey string `mapstructure:"refresh_private_key"`
	RefreshPublicKey  string `mapstructure:"refresh_public_key"`
}

/*
====================================
STORAGE CONFIG
====================================
*/

// SessionConfig bounds session store calls and drives the reaper.
type SessionConfig struct {
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	// ReapInterval of zero disables the background purge.
	ReapInterval time.Duration `mapstructure:"reap_interval"`
}

// CacheConfig bounds every cache call.
type CacheConfig struct {
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// UserCacheConfig controls caching of the account-active check made by
// Authenticate. A TTL of zero reads the credential store every time.
type UserCacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig shapes generated challenges.
type OTPConfig struct {
	Digits      int           `mapstructure:"digits"`
	TTL         time.Duration `mapstructure:"ttl"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	// Pepper keys the stored code hash.
	Pepper string `mapstructure:"pepper"`
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RatePolicy is a fixed-window limit. A zero Limit disables the gate.
type RatePolicy struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

func (p RatePolicy) enabled() bool { return p.Limit > 0 }

// RateLimitConfig holds one policy per gated action.
type RateLimitConfig struct {
	Login       RatePolicy `mapstructure:"login"`
	OTPGenerate RatePolicy `mapstructure:"otp_generate"`
	OTPVerify   RatePolicy `mapstructure:"otp_verify"`
	OTPStatus   RatePolicy `mapstructure:"otp_status"`
	Refresh     RatePolicy `mapstructure:"refresh"`
}

func (c RateLimitConfig) policies() map[rate.Action]RatePolicy {
	return map[rate.Action]RatePolicy{
		rate.ActionLogin:       c.Login,
		rate.ActionOTPGenerate: c.OTPGenerate,
		rate.ActionOTPVerify:   c.OTPVerify,
		rate.ActionOTPStatus:   c.OTPStatus,
		rate.ActionRefresh:     c.Refresh,
	}
}

/*
====================================
LOGIN CONFIG
====================================
*/

// LoginFlow selects how Login combines password and OTP checks.
type LoginFlow string

const (
	// LoginDirect issues tokens on valid credentials.
	LoginDirect LoginFlow = "direct"
	// LoginOTPAfterPassword checks credentials, then requires a login OTP.
	LoginOTPAfterPassword LoginFlow = "otp_after_password"
	// LoginOTPFirst requires a login OTP before credentials are looked at.
	LoginOTPFirst LoginFlow = "otp_first"
)

// LoginConfig configures Login.
type LoginConfig struct {
	Flow LoginFlow `mapstructure:"flow"`
}

/*
====================================
BACKGROUND WORK CONFIG
====================================
*/

// EffectsConfig bounds best-effort side effects such as OTP delivery.
type EffectsConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxInFlight int           `mapstructure:"max_in_flight"`
}

// AuditConfig configures the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

// MetricsConfig toggles in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	EnableLatencyHistograms bool `mapstructure:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults. Secrets are left empty and
// must be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "examauth",
			Audience:      "exam-platform",
		},
		Session: SessionConfig{
			OperationTimeout: 2 * time.Second,
			ReapInterval:     time.Hour,
		},
		Cache: CacheConfig{
			OperationTimeout: 250 * time.Millisecond,
		},
		OTP: OTPConfig{
			Digits:      6,
			TTL:         10 * time.Minute,
			MaxAttempts: 3,
		},
		RateLimit: RateLimitConfig{
			Login:       RatePolicy{Limit: 10, Window: 15 * time.Minute},
			OTPGenerate: RatePolicy{Limit: 3, Window: 5 * time.Minute},
			OTPVerify:   RatePolicy{Limit: 20, Window: 15 * time.Minute},
			OTPStatus:   RatePolicy{Limit: 30, Window: 15 * time.Minute},
		},
		Login: LoginConfig{
			Flow: LoginDirect,
		},
		UserCache: UserCacheConfig{
			TTL: 30 * time.Second,
		},
		Password: password.DefaultArgon2Config(),
		Effects: EffectsConfig{
			Timeout:     5 * time.Second,
			MaxInFlight: 256,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the engine cannot run safely with.
// Key material itself is checked when the token manager is built.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be > AccessTTL")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if c.JWT.AccessSecret == "" || c.JWT.RefreshSecret == "" {
			return errors.New("hs256 requires AccessSecret and RefreshSecret")
		}
	case "ed25519":
		if c.JWT.AccessPrivateKey == "" || c.JWT.RefreshPrivateKey == "" {
			return errors.New("ed25519 requires AccessPrivateKey and RefreshPrivateKey")
		}
	default:
		return fmt.Errorf("unsupported JWT signing method %q", c.JWT.SigningMethod)
	}
	if c.JWT.Issuer == "" || c.JWT.Audience == "" {
		return errors.New("JWT Issuer and Audience must be set")
	}

	if c.Session.OperationTimeout <= 0 {
		return errors.New("Session OperationTimeout must be > 0")
	}
	if c.Session.ReapInterval < 0 {
		return errors.New("Session ReapInterval must be >= 0")
	}
	if c.Cache.OperationTimeout <= 0 {
		return errors.New("Cache OperationTimeout must be > 0")
	}
	if c.UserCache.TTL < 0 {
		return errors.New("UserCache TTL must be >= 0")
	}
	if c.UserCache.TTL >= c.JWT.AccessTTL {
		return errors.New("UserCache TTL must be shorter than JWT AccessTTL")
	}

	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be between 4 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("OTP MaxAttempts must be > 0")
	}

	for action, p := range c.RateLimit.policies() {
		if p.Limit < 0 {
			return fmt.Errorf("RateLimit %s Limit must be >= 0", action)
		}
		if p.enabled() && p.Window <= 0 {
			return fmt.Errorf("RateLimit %s Window must be > 0", action)
		}
	}

	switch c.Login.Flow {
	case LoginDirect, LoginOTPAfterPassword, LoginOTPFirst:
	default:
		return fmt.Errorf("unsupported Login Flow %q", c.Login.Flow)
	}

	if err := c.Password.Validate(); err != nil {
		return fmt.Errorf("Password: %w", err)
	}

	if c.Effects.Timeout <= 0 {
		return errors.New("Effects Timeout must be > 0")
	}
	if c.Effects.MaxInFlight <= 0 {
		return errors.New("Effects MaxInFlight must be > 0")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	return nil
}
