package examauth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, for example
// EXAMAUTH_JWT_ACCESS_SECRET or EXAMAUTH_RATE_LIMIT_LOGIN_LIMIT.
const EnvPrefix = "EXAMAUTH"

// LoadConfig reads path (YAML, JSON, TOML or .env, by extension) over
// [DefaultConfig] and applies environment overrides. An empty path reads the
// environment only. The result is validated.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return LoadConfigFrom(v)
}

// LoadConfigFrom decodes a Config from v after registering defaults and the
// environment binding. Callers embedding the engine settings in a larger file
// pass v.Sub("auth") or similar.
func LoadConfigFrom(v *viper.Viper) (Config, error) {
	if v == nil {
		return Config{}, errors.New("nil viper instance")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent
// from the file.
func setDefaults(v *viper.Viper, d Config) {
	// JWT
	v.SetDefault("jwt.access_ttl", d.JWT.AccessTTL)
	v.SetDefault("jwt.refresh_ttl", d.JWT.RefreshTTL)
	v.SetDefault("jwt.signing_method", d.JWT.SigningMethod)
	v.SetDefault("jwt.issuer", d.JWT.Issuer)
	v.SetDefault("jwt.audience", d.JWT.Audience)
	v.SetDefault("jwt.leeway", d.JWT.Leeway)
	v.SetDefault("jwt.access_secret", "")
	v.SetDefault("jwt.refresh_secret", "")
	v.SetDefault("jwt.access_private_key", "")
	v.SetDefault("jwt.access_public_key", "")
	v.SetDefault("jwt.refresh_private_key", "")
	v.SetDefault("jwt.refresh_public_key", "")

	// Storage
	v.SetDefault("session.operation_timeout", d.Session.OperationTimeout)
	v.SetDefault("session.reap_interval", d.Session.ReapInterval)
	v.SetDefault("cache.operation_timeout", d.Cache.OperationTimeout)
	v.SetDefault("user_cache.ttl", d.UserCache.TTL)

	// OTP
	v.SetDefault("otp.digits", d.OTP.Digits)
	v.SetDefault("otp.ttl", d.OTP.TTL)
	v.SetDefault("otp.max_attempts", d.OTP.MaxAttempts)
	v.SetDefault("otp.pepper", "")

	// Rate limits
	for name, p := range map[string]RatePolicy{
		"login":        d.RateLimit.Login,
		"otp_generate": d.RateLimit.OTPGenerate,
		"otp_verify":   d.RateLimit.OTPVerify,
		"otp_status":   d.RateLimit.OTPStatus,
		"refresh":      d.RateLimit.Refresh,
	} {
		v.SetDefault("rate_limit."+name+".limit", p.Limit)
		v.SetDefault("rate_limit."+name+".window", p.Window)
	}

	v.SetDefault("login.flow", string(d.Login.Flow))

	// Password
	v.SetDefault("password.memory", d.Password.Memory)
	v.SetDefault("password.time", d.Password.Time)
	v.SetDefault("password.parallelism", d.Password.Parallelism)
	v.SetDefault("password.salt_length", d.Password.SaltLength)
	v.SetDefault("password.key_length", d.Password.KeyLength)

	// Background work
	v.SetDefault("effects.timeout", d.Effects.Timeout)
	v.SetDefault("effects.max_in_flight", d.Effects.MaxInFlight)
	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.buffer_size", d.Audit.BufferSize)
	v.SetDefault("audit.drop_if_full", d.Audit.DropIfFull)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.enable_latency_histograms", d.Metrics.EnableLatencyHistograms)
}
