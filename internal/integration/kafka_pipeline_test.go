//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/kafka"
	"github.com/couchcryptid/air-quality-etl/internal/adapter/objstore"
	"github.com/couchcryptid/air-quality-etl/internal/adapter/slack"
	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/mockdata"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
	"github.com/couchcryptid/air-quality-etl/internal/pipeline"
	"github.com/couchcryptid/air-quality-etl/internal/warehouse"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testEventTopic = "test-partition-loaded"

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// startKafka runs a single-node KRaft broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("air-quality-etl"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

type publishedEvent struct {
	Event   domain.PartitionLoadedEvent
	Key     string
	Headers map[string]string
}

func readEvent(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedEvent {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from event topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var event domain.PartitionLoadedEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event), "unmarshal event")
	return publishedEvent{Event: event, Key: string(msg.Key), Headers: headers}
}

// TestPipelineEndToEnd lands a mock partition, runs it through the
// orchestrator with a real broker, and reads the loaded event back.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testEventTopic)

	root := t.TempDir()
	raw := objstore.NewLocalStore(root + "/raw")
	p := domain.PartitionKey{Date: "2025-10-05", Hour: 14}
	opts := mockdata.DefaultOptions()
	opts.FetchedAt = time.Date(2025, 10, 5, 14, 1, 0, 0, time.UTC)
	names, err := mockdata.WritePartition(ctx, raw, p, opts)
	require.NoError(t, err)

	wh, err := warehouse.Open(ctx, "", discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = wh.Close() })

	publisher := kafka.NewPublisher(&config.Config{
		KafkaBrokers:    []string{broker},
		KafkaEventTopic: testEventTopic,
	}, discardLogger())
	t.Cleanup(func() { _ = publisher.Close() })

	orch := pipeline.New(pipeline.Deps{
		Source:     raw,
		Quarantine: objstore.NewQuarantineSink(objstore.NewLocalStore(root+"/quarantine"), discardLogger()),
		Warehouse:  wh,
		Events:     publisher,
		Alerts:     slack.NewLogNotifier(discardLogger()),
	}, pipeline.Options{
		MinArtifactBytes: 200,
		MinArtifacts:     2,
		Window:           domain.ScopeDay,
	}, discardLogger(), observability.NewMetricsForTesting())
	t.Cleanup(func() { _ = orch.Close() })

	run, err := orch.Run(ctx, p)
	require.NoError(t, err)
	require.Equal(t, pipeline.ResultSuccess, run.Result, run.Error)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testEventTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	got := readEvent(ctx, t, consumer)
	assert.Equal(t, p.String(), got.Key)
	assert.Equal(t, "partition_loaded", got.Headers["event_type"])
	assert.Equal(t, p.String(), got.Headers["partition"])
	_, err = time.Parse(time.RFC3339, got.Headers["ingested_at"])
	assert.NoError(t, err, "ingested_at should be valid RFC3339")

	assert.Equal(t, run.ID, got.Event.RunID)
	assert.ElementsMatch(t, names, got.Event.ArtifactRefs)
	assert.Equal(t, 24, got.Event.RowsWritten["staging.weather_hourly"])
	assert.Equal(t, 24, got.Event.RowsWritten["staging.aqi_hourly"])
}

// TestReplayPublishesAgain checks that a second run of the same partition
// re-emits its event without duplicating warehouse rows.
func TestReplayPublishesAgain(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testEventTopic)

	raw := objstore.NewLocalStore(t.TempDir())
	p := domain.PartitionKey{Date: "2025-10-05", Hour: 3}
	_, err := mockdata.WritePartition(ctx, raw, p, mockdata.DefaultOptions())
	require.NoError(t, err)

	wh, err := warehouse.Open(ctx, "", discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = wh.Close() })

	publisher := kafka.NewPublisher(&config.Config{
		KafkaBrokers:    []string{broker},
		KafkaEventTopic: testEventTopic,
	}, discardLogger())
	t.Cleanup(func() { _ = publisher.Close() })

	orch := pipeline.New(pipeline.Deps{
		Source:     raw,
		Quarantine: objstore.NewQuarantineSink(objstore.NewLocalStore(t.TempDir()), discardLogger()),
		Warehouse:  wh,
		Events:     publisher,
	}, pipeline.Options{MinArtifactBytes: 200, Window: domain.ScopeDay}, discardLogger(), observability.NewMetricsForTesting())
	t.Cleanup(func() { _ = orch.Close() })

	for range 2 {
		run, err := orch.Run(ctx, p)
		require.NoError(t, err)
		require.Equal(t, pipeline.ResultSuccess, run.Result, run.Error)
	}

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testEventTopic,
		GroupID:     fmt.Sprintf("test-replay-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	first := readEvent(ctx, t, consumer)
	second := readEvent(ctx, t, consumer)
	assert.NotEqual(t, first.Event.RunID, second.Event.RunID)
	assert.Equal(t, first.Key, second.Key)

	n, err := wh.CountDate(ctx, warehouse.WeatherHourly, p.Date, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 24, n)
}
