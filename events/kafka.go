package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/MrEthical07/examauth"
)

const (
	DefaultSecurityTopic = "auth.security-events"
	DefaultOTPTopic      = "notifications.otp"
	DefaultClientID      = "examauth-producer"
	defaultProduceWait   = 5 * time.Second
	sourceName           = "examauth"
	contentTypeJSON      = "application/json"
)

// Producer is the subset of *kgo.Client used here.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaConfig configures the shared producer client.
type KafkaConfig struct {
	Brokers        []string      `mapstructure:"brokers"`
	ClientID       string        `mapstructure:"client_id"`
	SecurityTopic  string        `mapstructure:"security_topic"`
	OTPTopic       string        `mapstructure:"otp_topic"`
	ProduceTimeout time.Duration `mapstructure:"produce_timeout"`
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.SecurityTopic == "" {
		c.SecurityTopic = DefaultSecurityTopic
	}
	if c.OTPTopic == "" {
		c.OTPTopic = DefaultOTPTopic
	}
	if c.ProduceTimeout <= 0 {
		c.ProduceTimeout = defaultProduceWait
	}
	return c
}

// NewKafkaClient dials the brokers and verifies connectivity.
func NewKafkaClient(ctx context.Context, cfg KafkaConfig) (*kgo.Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	cfg = cfg.withDefaults()

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.RecordRetries(3),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Kafka: %w", err)
	}
	return client, nil
}

func newRecord(topic, key, eventType string, value []byte, at time.Time) *kgo.Record {
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "event_id", Value: []byte(uuid.NewString())},
			{Key: "source", Value: []byte(sourceName)},
			{Key: "content_type", Value: []byte(contentTypeJSON)},
		},
		Timestamp: at,
	}
}

// KafkaSink publishes audit events to the security topic. Records are keyed
// by user id, or by email when the user is unknown, so one account's events
// stay ordered on a partition.
type KafkaSink struct {
	producer Producer
	topic    string
	timeout  time.Duration
	logger   *zap.Logger
}

var _ examauth.AuditSink = (*KafkaSink)(nil)

func NewKafkaSink(producer Producer, cfg KafkaConfig, logger *zap.Logger) *KafkaSink {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSink{
		producer: producer,
		topic:    cfg.SecurityTopic,
		timeout:  cfg.ProduceTimeout,
		logger:   logger.Named("audit.kafka"),
	}
}

// Emit runs on the audit dispatcher goroutine. Failures are logged and the
// event is lost.
func (s *KafkaSink) Emit(ctx context.Context, event examauth.AuditEvent) {
	value, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal audit event", zap.String("event_type", event.EventType), zap.Error(err))
		return
	}

	key := event.UserID
	if key == "" {
		key = event.Email
	}
	at := event.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.producer.ProduceSync(ctx, newRecord(s.topic, key, event.EventType, value, at)).FirstErr(); err != nil {
		s.logger.Warn("publish audit event",
			zap.String("topic", s.topic),
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
	}
}

// otpMessage is the record consumed by the notification service.
type otpMessage struct {
	Email     string    `json:"email"`
	Purpose   string    `json:"purpose"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
	Locale    string    `json:"locale"`
}

// KafkaNotifier hands OTP codes to the notification service over Kafka.
type KafkaNotifier struct {
	producer Producer
	topic    string
	timeout  time.Duration
}

var _ examauth.Notifier = (*KafkaNotifier)(nil)

func NewKafkaNotifier(producer Producer, cfg KafkaConfig) *KafkaNotifier {
	cfg = cfg.withDefaults()
	return &KafkaNotifier{producer: producer, topic: cfg.OTPTopic, timeout: cfg.ProduceTimeout}
}

func (n *KafkaNotifier) Deliver(ctx context.Context, d examauth.OTPDelivery) error {
	value, err := json.Marshal(otpMessage{
		Email:     d.Email,
		Purpose:   string(d.Purpose),
		Code:      d.Code,
		ExpiresAt: d.ExpiresAt.UTC(),
		Locale:    "es",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal otp delivery: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	rec := newRecord(n.topic, d.Email, "otp_delivery", value, time.Now())
	if err := n.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish otp delivery: %w", err)
	}
	return nil
}
