package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Storage backends for RAW_STORE.
const (
	StoreLocal = "local"
	StoreGCS   = "gcs"
)

// Event sinks for EVENT_SINK.
const (
	SinkNone   = "none"
	SinkKafka  = "kafka"
	SinkPubSub = "pubsub"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	City      string
	Latitude  float64
	Longitude float64
	Timezone  string
	Location  *time.Location

	Schedule         string
	TargetHourOffset int
	NormalizeWindow  string

	RawStore           string
	RawBucket          string
	QuarantineBucket   string
	LocalDataDir       string
	GCPCredentialsFile string
	WarehousePath      string

	IngestorURL     string
	IngestorTimeout time.Duration

	EventSink       string
	KafkaBrokers    []string
	KafkaEventTopic string
	GCPProjectID    string
	PubSubTopic     string

	SlackWebhookURL string

	MinArtifactBytes int64
	MinArtifacts     int
	PollInterval     time.Duration
	PollTimeout      time.Duration
	StageMaxAttempts int
	StageRetryDelay  time.Duration
	RunHistoryTTL    time.Duration

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		City:     sharedcfg.EnvOrDefault("CITY", "Bangkok"),
		Timezone: sharedcfg.EnvOrDefault("TIMEZONE", "Asia/Bangkok"),
		Schedule: sharedcfg.EnvOrDefault("SCHEDULE", "0 * * * *"),

		NormalizeWindow: sharedcfg.EnvOrDefault("NORMALIZE_WINDOW", "hour"),

		RawStore:           sharedcfg.EnvOrDefault("RAW_STORE", StoreLocal),
		RawBucket:          sharedcfg.EnvOrDefault("RAW_BUCKET", ""),
		QuarantineBucket:   sharedcfg.EnvOrDefault("QUARANTINE_BUCKET", ""),
		LocalDataDir:       sharedcfg.EnvOrDefault("LOCAL_DATA_DIR", "data"),
		GCPCredentialsFile: sharedcfg.EnvOrDefault("GCP_CREDENTIALS_FILE", ""),
		WarehousePath:      sharedcfg.EnvOrDefault("WAREHOUSE_PATH", filepath.Join("data", "warehouse.duckdb")),

		IngestorURL: sharedcfg.EnvOrDefault("INGESTOR_URL", ""),

		EventSink:       sharedcfg.EnvOrDefault("EVENT_SINK", SinkNone),
		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaEventTopic: sharedcfg.EnvOrDefault("KAFKA_EVENT_TOPIC", "partition-loaded"),
		GCPProjectID:    sharedcfg.EnvOrDefault("GCP_PROJECT_ID", ""),
		PubSubTopic:     sharedcfg.EnvOrDefault("PUBSUB_TOPIC", ""),

		SlackWebhookURL: sharedcfg.EnvOrDefault("SLACK_WEBHOOK_URL", ""),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.Latitude, err = parseFloat("LATITUDE", "13.7563"); err != nil {
		return nil, err
	}
	if cfg.Longitude, err = parseFloat("LONGITUDE", "100.5018"); err != nil {
		return nil, err
	}
	if cfg.TargetHourOffset, err = parseInt("TARGET_HOUR_OFFSET", "0"); err != nil {
		return nil, err
	}
	if cfg.MinArtifacts, err = parseInt("MIN_ARTIFACTS", "1"); err != nil {
		return nil, err
	}
	if cfg.StageMaxAttempts, err = parseInt("STAGE_MAX_ATTEMPTS", "3"); err != nil {
		return nil, err
	}
	minBytes, err := parseInt("MIN_ARTIFACT_BYTES", "200")
	if err != nil {
		return nil, err
	}
	cfg.MinArtifactBytes = int64(minBytes)

	durations := []struct {
		key, def string
		dst      *time.Duration
	}{
		{"INGESTOR_TIMEOUT", "30s", &cfg.IngestorTimeout},
		{"POLL_INTERVAL", "30s", &cfg.PollInterval},
		{"POLL_TIMEOUT", "10m", &cfg.PollTimeout},
		{"STAGE_RETRY_DELAY", "5m", &cfg.StageRetryDelay},
		{"RUN_HISTORY_TTL", "24h", &cfg.RunHistoryTTL},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if cfg.QuarantineBucket == "" {
		cfg.QuarantineBucket = cfg.RawBucket
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return errors.New("LATITUDE must be between -90 and 90")
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return errors.New("LONGITUDE must be between -180 and 180")
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	c.Location = loc

	if c.NormalizeWindow != "hour" && c.NormalizeWindow != "day" {
		return errors.New("NORMALIZE_WINDOW must be hour or day")
	}

	switch c.RawStore {
	case StoreLocal:
	case StoreGCS:
		if c.RawBucket == "" {
			return errors.New("RAW_BUCKET is required when RAW_STORE is gcs")
		}
	default:
		return errors.New("RAW_STORE must be local or gcs")
	}

	switch c.EventSink {
	case SinkNone:
	case SinkKafka:
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when EVENT_SINK is kafka")
		}
		if c.KafkaEventTopic == "" {
			return errors.New("KAFKA_EVENT_TOPIC is required when EVENT_SINK is kafka")
		}
	case SinkPubSub:
		if c.GCPProjectID == "" || c.PubSubTopic == "" {
			return errors.New("GCP_PROJECT_ID and PUBSUB_TOPIC are required when EVENT_SINK is pubsub")
		}
	default:
		return errors.New("EVENT_SINK must be none, kafka or pubsub")
	}

	if c.MinArtifactBytes < 0 {
		return errors.New("MIN_ARTIFACT_BYTES must not be negative")
	}
	if c.MinArtifacts < 1 {
		return errors.New("MIN_ARTIFACTS must be at least 1")
	}
	if c.StageMaxAttempts < 1 {
		return errors.New("STAGE_MAX_ATTEMPTS must be at least 1")
	}
	if c.PollInterval <= 0 {
		return errors.New("POLL_INTERVAL must be positive")
	}
	if c.IngestorTimeout <= 0 {
		return errors.New("INGESTOR_TIMEOUT must be positive")
	}
	if c.RunHistoryTTL <= 0 {
		return errors.New("RUN_HISTORY_TTL must be positive")
	}
	return nil
}

// RawDir is the local landing zone root.
func (c *Config) RawDir() string {
	return filepath.Join(c.LocalDataDir, "raw")
}

// QuarantineDir is the local quarantine root.
func (c *Config) QuarantineDir() string {
	return filepath.Join(c.LocalDataDir, "quarantine")
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

func parseInt(key, def string) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, def))
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}

func parseFloat(key, def string) (float64, error) {
	f, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(key, def), 64)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return f, nil
}
