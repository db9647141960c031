package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/MrEthical07/examauth"
)

// LogSink writes audit events as structured log lines. Failed outcomes are
// logged at warn level.
type LogSink struct {
	logger *zap.Logger
}

var _ examauth.AuditSink = (*LogSink)(nil)

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("audit")}
}

func (s *LogSink) Emit(_ context.Context, event examauth.AuditEvent) {
	fields := make([]zap.Field, 0, 7+len(event.Metadata))
	fields = append(fields,
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.Time("at", event.Timestamp),
	)
	if event.UserID != "" {
		fields = append(fields, zap.String("user_id", event.UserID))
	}
	if event.Email != "" {
		fields = append(fields, zap.String("email", event.Email))
	}
	if event.SessionID != "" {
		fields = append(fields, zap.String("session_id", event.SessionID))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	for k, v := range event.Metadata {
		fields = append(fields, zap.String("meta."+k, v))
	}

	if event.Success {
		s.logger.Info("security event", fields...)
		return
	}
	if event.Error != "" {
		fields = append(fields, zap.String("reason", event.Error))
	}
	s.logger.Warn("security event", fields...)
}

// MultiSink fans an event out to every sink in order.
type MultiSink []examauth.AuditSink

func (m MultiSink) Emit(ctx context.Context, event examauth.AuditEvent) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}
