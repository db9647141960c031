package examauth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefaultConfigNeedsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("default config without secrets must not validate")
	}
	cfg.JWT.AccessSecret = "a"
	cfg.JWT.RefreshSecret = "b"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestDefaultOTPSettings(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.OTP.Digits != 6 || cfg.OTP.TTL != 10*time.Minute || cfg.OTP.MaxAttempts != 3 {
		t.Fatalf("unexpected otp defaults %+v", cfg.OTP)
	}
	if cfg.JWT.AccessTTL != 15*time.Minute || cfg.JWT.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("unexpected jwt defaults %+v", cfg.JWT)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"refresh shorter than access": func(c *Config) { c.JWT.RefreshTTL = c.JWT.AccessTTL },
		"unknown signing method":      func(c *Config) { c.JWT.SigningMethod = "rs256" },
		"ed25519 without keys":        func(c *Config) { c.JWT.SigningMethod = "ed25519" },
		"empty audience":              func(c *Config) { c.JWT.Audience = "" },
		"zero session timeout":        func(c *Config) { c.Session.OperationTimeout = 0 },
		"negative reap interval":      func(c *Config) { c.Session.ReapInterval = -time.Second },
		"user cache outlives access":  func(c *Config) { c.UserCache.TTL = c.JWT.AccessTTL },
		"otp digits too small":        func(c *Config) { c.OTP.Digits = 3 },
		"otp digits too large":        func(c *Config) { c.OTP.Digits = 11 },
		"zero otp ttl":                func(c *Config) { c.OTP.TTL = 0 },
		"zero otp attempts":           func(c *Config) { c.OTP.MaxAttempts = 0 },
		"negative rate limit":         func(c *Config) { c.RateLimit.Login.Limit = -1 },
		"rate limit without window":   func(c *Config) { c.RateLimit.Refresh = RatePolicy{Limit: 5} },
		"unknown login flow":          func(c *Config) { c.Login.Flow = "magic_link" },
		"weak argon2":                 func(c *Config) { c.Password.Memory = 1024 },
		"zero effect timeout":         func(c *Config) { c.Effects.Timeout = 0 },
		"audit without buffer":        func(c *Config) { c.Audit = AuditConfig{Enabled: true} },
	}
	for name, mutate := range cases {
		cfg := testConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("EXAMAUTH_JWT_ACCESS_SECRET", "env-access")
	t.Setenv("EXAMAUTH_JWT_REFRESH_SECRET", "env-refresh")
	t.Setenv("EXAMAUTH_OTP_TTL", "5m")
	t.Setenv("EXAMAUTH_RATE_LIMIT_LOGIN_LIMIT", "25")
	t.Setenv("EXAMAUTH_LOGIN_FLOW", "otp_after_password")
	t.Setenv("EXAMAUTH_RATE_LIMIT_OTP_STATUS_LIMIT", "7")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWT.AccessSecret != "env-access" || cfg.JWT.RefreshSecret != "env-refresh" {
		t.Fatalf("secrets not read from env: %+v", cfg.JWT)
	}
	if cfg.OTP.TTL != 5*time.Minute {
		t.Fatalf("expected otp ttl 5m, got %v", cfg.OTP.TTL)
	}
	if cfg.RateLimit.Login.Limit != 25 || cfg.RateLimit.Login.Window != 15*time.Minute {
		t.Fatalf("unexpected login policy %+v", cfg.RateLimit.Login)
	}
	if cfg.RateLimit.OTPStatus != (RatePolicy{Limit: 7, Window: 15 * time.Minute}) {
		t.Fatalf("unexpected otp status policy %+v", cfg.RateLimit.OTPStatus)
	}
	if cfg.Login.Flow != LoginOTPAfterPassword {
		t.Fatalf("unexpected flow %q", cfg.Login.Flow)
	}
	if cfg.OTP.Digits != 6 || cfg.JWT.Issuer != "examauth" {
		t.Fatal("defaults must survive partial overrides")
	}
}

func TestLoadConfigFromFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "auth.yaml")
	body := strings.Join([]string{
		"jwt:",
		"  access_secret: file-access",
		"  refresh_secret: file-refresh",
		"  access_ttl: 10m",
		"otp:",
		"  max_attempts: 5",
		"rate_limit:",
		"  refresh:",
		"    limit: 30",
		"    window: 1m",
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("EXAMAUTH_OTP_MAX_ATTEMPTS", "4")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWT.AccessSecret != "file-access" || cfg.JWT.AccessTTL != 10*time.Minute {
		t.Fatalf("file values not applied: %+v", cfg.JWT)
	}
	if cfg.OTP.MaxAttempts != 4 {
		t.Fatalf("env must override file, got %d", cfg.OTP.MaxAttempts)
	}
	if cfg.RateLimit.Refresh != (RatePolicy{Limit: 30, Window: time.Minute}) {
		t.Fatalf("unexpected refresh policy %+v", cfg.RateLimit.Refresh)
	}
}

func TestLoadConfigValidates(t *testing.T) {
	v := viper.New()
	v.Set("jwt.access_secret", "a")
	v.Set("jwt.refresh_secret", "b")
	v.Set("otp.digits", 2)

	if _, err := LoadConfigFrom(v); err == nil || !strings.Contains(err.Error(), "OTP Digits") {
		t.Fatalf("expected otp digits validation error, got %v", err)
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := LoadConfigFrom(nil); err == nil {
		t.Fatal("expected error for nil viper")
	}
}
