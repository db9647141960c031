// Package events publishes examauth audit events and OTP deliveries to Kafka
// and to a zap logger.
//
// [KafkaSink] implements examauth.AuditSink and [KafkaNotifier] implements
// examauth.Notifier. Both write JSON records through a franz-go client. The
// notification service consuming the OTP topic owns the actual email send.
package events
