// Command examauthd serves the exam platform's authentication API.
//
//	examauthd -config /etc/examauth/examauthd.yaml
//
// Every key can be overridden from the environment with the EXAMAUTH_ prefix,
// for example EXAMAUTH_JWT_ACCESS_SECRET or EXAMAUTH_POSTGRES_URL.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/MrEthical07/examauth"
	"github.com/MrEthical07/examauth/credential"
	"github.com/MrEthical07/examauth/events"
	"github.com/MrEthical07/examauth/httpapi"
	"github.com/MrEthical07/examauth/metrics/export/prometheus"
	"github.com/MrEthical07/examauth/session"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML, JSON or TOML config file")
	flag.Parse()

	cfg, err := loadDaemonConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "examauthd: %v\n", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "examauthd: logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("examauthd stopped", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(cfg logConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func run(ctx context.Context, cfg daemonConfig, logger *zap.Logger) error {
	// -------- REDIS --------
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer func() { _ = rdb.Close() }()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	// -------- POSTGRES --------
	if cfg.Postgres.Migrate && cfg.SessionBackend == backendPostgres {
		if err := session.Migrate(cfg.Postgres.URL); err != nil {
			return err
		}
		logger.Info("session schema up to date")
	}
	pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("postgres pool: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(pingCtx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}

	builder := examauth.New().
		WithConfig(cfg.Auth).
		WithRedis(rdb).
		WithCredentialStore(credential.NewPostgresStore(pool)).
		WithLogger(logger)

	if cfg.SessionBackend == backendPostgres {
		builder = builder.WithSessionStore(session.NewPostgresStore(pool))
	}

	// -------- EVENTS --------
	var sink examauth.AuditSink = events.NewLogSink(logger)
	if len(cfg.Kafka.Brokers) > 0 {
		client, err := events.NewKafkaClient(pingCtx, cfg.Kafka)
		if err != nil {
			return err
		}
		defer closeKafka(client, logger)

		sink = events.MultiSink{sink, events.NewKafkaSink(client, cfg.Kafka, logger)}
		builder = builder.WithNotifier(events.NewKafkaNotifier(client, cfg.Kafka))
		logger.Info("kafka producer ready", zap.Strings("brokers", cfg.Kafka.Brokers))
	} else {
		logger.Warn("kafka brokers not configured, otp codes will not be delivered")
	}
	builder = builder.WithAuditSink(sink)

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	// -------- HTTP --------
	router, err := httpapi.NewRouter(engine, httpapi.Options{
		Logger:         logger,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		MetricsHandler: prometheus.NewCollector(engine).Handler(),
	})
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTP.Addr), zap.String("session_backend", cfg.SessionBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func closeKafka(client *kgo.Client, logger *zap.Logger) {
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Flush(flushCtx); err != nil {
		logger.Warn("kafka flush", zap.Error(err))
	}
	client.Close()
}
