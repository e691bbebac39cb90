package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/wannabeayours/demirens-auth/internal/config"
	"github.com/wannabeayours/demirens-auth/internal/models"
	"github.com/wannabeayours/demirens-auth/internal/util"
)

// EventProducer publishes security events (failed logins, lockouts, OTP
// lifecycle) to Kafka. The login flow never depends on it: publishing is
// fire-and-forget and the service runs fine with Kafka absent.
type EventProducer struct {
	writer *kafka.Writer
	topic  string
	logger *zap.Logger
}

func NewEventProducer(cfg *config.Config, logger *zap.Logger) (*EventProducer, error) {
	kafkaConfig := cfg.Kafka

	writer := &kafka.Writer{
		Addr:         kafka.TCP(kafkaConfig.Brokers...),
		Topic:        kafkaConfig.Topic,
		Balancer:     &kafka.LeastBytes{},
		MaxAttempts:  3,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("failed to write security events",
					zap.Error(err),
					zap.Int("message_count", len(messages)),
				)
			}
		},
	}

	util.Info("Security event producer initialized",
		zap.Strings("brokers", kafkaConfig.Brokers),
		zap.String("topic", kafkaConfig.Topic),
	)

	return &EventProducer{
		writer: writer,
		topic:  kafkaConfig.Topic,
		logger: logger,
	}, nil
}

// Publish writes one event keyed by principal so events for the same login
// land in order on one partition. Safe to call on a nil producer.
func (p *EventProducer) Publish(ctx context.Context, event models.SecurityEvent) {
	if p == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to encode security event", zap.Error(err))
		return
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Principal),
		Value: payload,
	})
	if err != nil {
		p.logger.Warn("failed to publish security event",
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
	}
}

func (p *EventProducer) HealthCheck(ctx context.Context) error {
	if p == nil {
		return fmt.Errorf("event producer not initialized")
	}
	// The async writer surfaces broker trouble through its completion
	// callback; stats are the cheapest liveness signal available here.
	stats := p.writer.Stats()
	if stats.Errors > 0 && stats.Writes == 0 {
		return fmt.Errorf("kafka writer has produced only errors")
	}
	return nil
}

func (p *EventProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
