package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

const eventTypePartitionLoaded = "partition_loaded"

// Publisher announces loaded partitions on a Kafka topic.
// It implements pipeline.EventPublisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured event topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaEventTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish writes one event keyed by partition, so every event for a
// partition lands on the same Kafka partition in order.
func (p *Publisher) Publish(ctx context.Context, event domain.PartitionLoadedEvent) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", event.Partition, err)
	}
	p.logger.Debug("partition event published", "partition", event.Partition, "topic", p.writer.Topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a PartitionLoadedEvent into a Kafka message.
func serializeToMessage(event domain.PartitionLoadedEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize partition event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.Partition),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(eventTypePartitionLoaded)},
			{Key: "partition", Value: []byte(event.Partition)},
			{Key: "ingested_at", Value: []byte(event.IngestedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
