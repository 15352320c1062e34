// Package kafka implements eventstream.Publisher over a Kafka topic,
// for deployments that fan TurnPersistedEvent out to downstream
// consumers (analytics, audit, cross-service cache invalidation)
// instead of handling it in-process. The teacher's go.mod carries
// segmentio/kafka-go but never exercises it; this is the first
// concrete consumer of that dependency, following kafka-go's
// standard Writer/Reader usage.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/bridgeware/hmlr/pkg/eventstream"
)

// Publisher publishes TurnPersistedEvents to a single Kafka topic,
// one message per turn, keyed by block id so that all events for a
// Bridge Block land on the same partition and preserve ordering.
type Publisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// Config configures NewPublisher.
type Config struct {
	// Brokers is the list of Kafka broker addresses (host:port).
	Brokers []string
	// Topic is the topic TurnPersistedEvents are produced to.
	Topic string
}

// NewPublisher opens a Kafka writer for the given topic. It does not
// dial eagerly; the first PublishTurn call establishes the connection.
func NewPublisher(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker address is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}, nil
}

// PublishTurn marshals the event as JSON and produces it to the
// configured topic, keyed by block id.
func (p *Publisher) PublishTurn(ctx context.Context, event *eventstream.TurnPersistedEvent) error {
	if event == nil {
		return eventstream.ErrNilTurnEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling turn event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Lineage.BlockID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Warn("kafka publish failed",
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
		return fmt.Errorf("writing turn event to kafka: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying Kafka writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
