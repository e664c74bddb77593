package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultBroker = "localhost:9092"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Bangkok", cfg.City)
	assert.Equal(t, 13.7563, cfg.Latitude)
	assert.Equal(t, 100.5018, cfg.Longitude)
	assert.Equal(t, "Asia/Bangkok", cfg.Timezone)
	require.NotNil(t, cfg.Location)
	assert.Equal(t, "Asia/Bangkok", cfg.Location.String())
	assert.Equal(t, "0 * * * *", cfg.Schedule)
	assert.Equal(t, 0, cfg.TargetHourOffset)
	assert.Equal(t, "hour", cfg.NormalizeWindow)

	assert.Equal(t, StoreLocal, cfg.RawStore)
	assert.Equal(t, "data", cfg.LocalDataDir)
	assert.Equal(t, filepath.Join("data", "raw"), cfg.RawDir())
	assert.Equal(t, filepath.Join("data", "quarantine"), cfg.QuarantineDir())
	assert.Equal(t, filepath.Join("data", "warehouse.duckdb"), cfg.WarehousePath)

	assert.Empty(t, cfg.IngestorURL)
	assert.Equal(t, 30*time.Second, cfg.IngestorTimeout)
	assert.Equal(t, SinkNone, cfg.EventSink)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "partition-loaded", cfg.KafkaEventTopic)
	assert.Empty(t, cfg.SlackWebhookURL)

	assert.Equal(t, int64(200), cfg.MinArtifactBytes)
	assert.Equal(t, 1, cfg.MinArtifacts)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.PollTimeout)
	assert.Equal(t, 3, cfg.StageMaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.StageRetryDelay)
	assert.Equal(t, 24*time.Hour, cfg.RunHistoryTTL)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("CITY", "Chiang Mai")
	t.Setenv("LATITUDE", "18.7883")
	t.Setenv("LONGITUDE", "98.9853")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("SCHEDULE", "5 * * * *")
	t.Setenv("TARGET_HOUR_OFFSET", "-1")
	t.Setenv("NORMALIZE_WINDOW", "day")
	t.Setenv("RAW_STORE", "gcs")
	t.Setenv("RAW_BUCKET", "aqi-raw")
	t.Setenv("EVENT_SINK", "kafka")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_EVENT_TOPIC", "aqi-loaded")
	t.Setenv("MIN_ARTIFACT_BYTES", "512")
	t.Setenv("MIN_ARTIFACTS", "2")
	t.Setenv("POLL_INTERVAL", "10s")
	t.Setenv("POLL_TIMEOUT", "2m")
	t.Setenv("STAGE_MAX_ATTEMPTS", "5")
	t.Setenv("STAGE_RETRY_DELAY", "1m")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Chiang Mai", cfg.City)
	assert.Equal(t, 18.7883, cfg.Latitude)
	assert.Equal(t, 98.9853, cfg.Longitude)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, "5 * * * *", cfg.Schedule)
	assert.Equal(t, -1, cfg.TargetHourOffset)
	assert.Equal(t, "day", cfg.NormalizeWindow)
	assert.Equal(t, StoreGCS, cfg.RawStore)
	assert.Equal(t, "aqi-raw", cfg.RawBucket)
	assert.Equal(t, "aqi-raw", cfg.QuarantineBucket, "quarantine bucket defaults to raw bucket")
	assert.Equal(t, SinkKafka, cfg.EventSink)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "aqi-loaded", cfg.KafkaEventTopic)
	assert.Equal(t, int64(512), cfg.MinArtifactBytes)
	assert.Equal(t, 2, cfg.MinArtifacts)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.PollTimeout)
	assert.Equal(t, 5, cfg.StageMaxAttempts)
	assert.Equal(t, time.Minute, cfg.StageRetryDelay)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_NegativeShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "-1s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"latitude not a number", map[string]string{"LATITUDE": "north"}, "LATITUDE"},
		{"latitude out of range", map[string]string{"LATITUDE": "91"}, "LATITUDE"},
		{"longitude out of range", map[string]string{"LONGITUDE": "-181"}, "LONGITUDE"},
		{"unknown timezone", map[string]string{"TIMEZONE": "Mars/Olympus"}, "TIMEZONE"},
		{"bad window", map[string]string{"NORMALIZE_WINDOW": "week"}, "NORMALIZE_WINDOW"},
		{"bad store", map[string]string{"RAW_STORE": "s3"}, "RAW_STORE"},
		{"gcs without bucket", map[string]string{"RAW_STORE": "gcs"}, "RAW_BUCKET"},
		{"bad sink", map[string]string{"EVENT_SINK": "sns"}, "EVENT_SINK"},
		{"pubsub without topic", map[string]string{"EVENT_SINK": "pubsub", "GCP_PROJECT_ID": "p"}, "PUBSUB_TOPIC"},
		{"bad poll interval", map[string]string{"POLL_INTERVAL": "soon"}, "POLL_INTERVAL"},
		{"zero poll interval", map[string]string{"POLL_INTERVAL": "0s"}, "POLL_INTERVAL"},
		{"negative poll timeout", map[string]string{"POLL_TIMEOUT": "-1m"}, "POLL_TIMEOUT"},
		{"zero attempts", map[string]string{"STAGE_MAX_ATTEMPTS": "0"}, "STAGE_MAX_ATTEMPTS"},
		{"zero min artifacts", map[string]string{"MIN_ARTIFACTS": "0"}, "MIN_ARTIFACTS"},
		{"negative min bytes", map[string]string{"MIN_ARTIFACT_BYTES": "-5"}, "MIN_ARTIFACT_BYTES"},
		{"bad hour offset", map[string]string{"TARGET_HOUR_OFFSET": "one"}, "TARGET_HOUR_OFFSET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
