package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/MrEthical07/examauth"
	"github.com/MrEthical07/examauth/events"
)

type httpConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	TrustedProxies    []string      `mapstructure:"trusted_proxies"`
}

type redisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type postgresConfig struct {
	URL     string `mapstructure:"url"`
	Migrate bool   `mapstructure:"migrate"`
}

type logConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// processConfig holds everything outside the engine settings.
type processConfig struct {
	HTTP           httpConfig         `mapstructure:"http"`
	Redis          redisConfig        `mapstructure:"redis"`
	Postgres       postgresConfig     `mapstructure:"postgres"`
	Kafka          events.KafkaConfig `mapstructure:"kafka"`
	Log            logConfig          `mapstructure:"log"`
	SessionBackend string             `mapstructure:"session_backend"`
}

type daemonConfig struct {
	processConfig
	Auth examauth.Config
}

const (
	backendRedis    = "redis"
	backendPostgres = "postgres"
)

func setDaemonDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_header_timeout", 5*time.Second)
	v.SetDefault("http.shutdown_timeout", 15*time.Second)
	v.SetDefault("http.trusted_proxies", []string{})

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 0)

	v.SetDefault("postgres.url", "")
	v.SetDefault("postgres.migrate", true)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.client_id", events.DefaultClientID)
	v.SetDefault("kafka.security_topic", events.DefaultSecurityTopic)
	v.SetDefault("kafka.otp_topic", events.DefaultOTPTopic)
	v.SetDefault("kafka.produce_timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("session_backend", backendRedis)
}

// loadDaemonConfig reads the engine settings and the process settings from
// one file. Engine keys live at the top level next to http, redis, postgres,
// kafka and log.
func loadDaemonConfig(path string) (daemonConfig, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return daemonConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	setDaemonDefaults(v)

	auth, err := examauth.LoadConfigFrom(v)
	if err != nil {
		return daemonConfig{}, err
	}

	cfg := daemonConfig{Auth: auth}
	if err := v.Unmarshal(&cfg.processConfig); err != nil {
		return daemonConfig{}, fmt.Errorf("decode process config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return daemonConfig{}, err
	}
	return cfg, nil
}

func (c daemonConfig) validate() error {
	if c.Postgres.URL == "" {
		return errors.New("postgres.url is required for the credential store")
	}
	if c.SessionBackend != backendRedis && c.SessionBackend != backendPostgres {
		return fmt.Errorf("session_backend must be %q or %q, got %q", backendRedis, backendPostgres, c.SessionBackend)
	}
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	return nil
}
