package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/hashicorp/go-multierror"
	"google.golang.org/api/option"
)

// Publisher announces loaded partitions on a Cloud Pub/Sub topic.
// It implements pipeline.EventPublisher.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger *slog.Logger
}

// NewPublisher connects to projectID. Credentials come from credentialsFile
// when set, application default credentials otherwise. Extra client options
// are appended, which tests use to point at an emulator.
func NewPublisher(ctx context.Context, projectID, topicID, credentialsFile string, logger *slog.Logger, extra ...option.ClientOption) (*Publisher, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	opts = append(opts, extra...)
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	topic.EnableMessageOrdering = true
	return &Publisher{client: client, topic: topic, logger: logger}, nil
}

// Publish sends one event and waits for the server acknowledgement.
func (p *Publisher) Publish(ctx context.Context, event domain.PartitionLoadedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serialize partition event: %w", err)
	}
	res := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		OrderingKey: event.Partition,
		Attributes: map[string]string{
			"event_type":  "partition_loaded",
			"partition":   event.Partition,
			"ingested_at": event.IngestedAt.UTC().Format(time.RFC3339),
		},
	})
	id, err := res.Get(ctx)
	if err != nil {
		// A failed ordered publish pauses the key until resumed.
		p.topic.ResumePublish(event.Partition)
		return fmt.Errorf("publish %s: %w", event.Partition, err)
	}
	p.logger.Debug("partition event published", "partition", event.Partition, "message_id", id)
	return nil
}

// Close flushes pending messages and closes the client.
func (p *Publisher) Close() error {
	p.topic.Stop()
	var result *multierror.Error
	if err := p.client.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close pubsub client: %w", err))
	}
	return result.ErrorOrNil()
}
