// Package app assembles the service from configuration. Both cmd/etl and
// cmd/aqictl build through it so replays run with the same collaborators as
// scheduled runs.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/ingestor"
	kafkaadapter "github.com/couchcryptid/air-quality-etl/internal/adapter/kafka"
	"github.com/couchcryptid/air-quality-etl/internal/adapter/objstore"
	pubsubadapter "github.com/couchcryptid/air-quality-etl/internal/adapter/pubsub"
	"github.com/couchcryptid/air-quality-etl/internal/adapter/slack"
	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
	"github.com/couchcryptid/air-quality-etl/internal/pipeline"
	"github.com/couchcryptid/air-quality-etl/internal/warehouse"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
)

// App owns every long-lived collaborator of the service.
type App struct {
	Config       *config.Config
	Raw          objstore.Store
	Warehouse    *warehouse.Loader
	Orchestrator *pipeline.Orchestrator

	logger  *slog.Logger
	closers []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

// Option adjusts how Build wires the service.
type Option func(*buildOptions)

type buildOptions struct {
	clock clockwork.Clock
}

// WithClock replaces the orchestrator's time source.
func WithClock(c clockwork.Clock) Option {
	return func(o *buildOptions) { o.clock = c }
}

// Build opens storage, the warehouse and the configured event sink, then
// creates the orchestrator on top of them. On error everything opened so
// far is closed again.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, options ...Option) (_ *App, err error) {
	var bo buildOptions
	for _, opt := range options {
		opt(&bo)
	}

	a := &App{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	raw, quarantine, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}
	a.Raw = raw

	wh, err := warehouse.Open(ctx, cfg.WarehousePath, logger)
	if err != nil {
		return nil, err
	}
	a.Warehouse = wh
	a.closers = append(a.closers, namedCloser{"warehouse", wh})

	events, err := a.openEvents(ctx)
	if err != nil {
		return nil, err
	}

	window, err := domain.ParseWindowScope(cfg.NormalizeWindow)
	if err != nil {
		return nil, err
	}
	retry := pipeline.StageRetry{MaxAttempts: cfg.StageMaxAttempts, Delay: cfg.StageRetryDelay}

	deps := pipeline.Deps{
		Source:     raw,
		Quarantine: objstore.NewQuarantineSink(quarantine, logger),
		Warehouse:  wh,
		Events:     events,
		Alerts:     newAlerter(cfg, logger),
	}
	if cfg.IngestorURL != "" {
		deps.Trigger = ingestor.NewClient(cfg.IngestorURL, cfg.IngestorTimeout, logger)
	} else {
		logger.Info("INGESTOR_URL not set, runs only wait for data")
	}

	a.Orchestrator = pipeline.New(deps, pipeline.Options{
		Location: domain.Location{
			City:      cfg.City,
			Latitude:  cfg.Latitude,
			Longitude: cfg.Longitude,
		},
		TimeZone:         cfg.Location,
		MinArtifactBytes: cfg.MinArtifactBytes,
		MinArtifacts:     cfg.MinArtifacts,
		PollInterval:     cfg.PollInterval,
		PollTimeout:      cfg.PollTimeout,
		NormalizeRetry:   retry,
		LoadRetry:        retry,
		Window:           window,
		HistoryTTL:       cfg.RunHistoryTTL,
		Clock:            bo.clock,
	}, logger, metrics)
	// Closed first so in-flight runs finish before their sinks go away.
	a.closers = append([]namedCloser{{"orchestrator", a.Orchestrator}}, a.closers...)

	return a, nil
}

// openStores returns the raw landing zone and the quarantine store for the
// configured backend.
func (a *App) openStores(ctx context.Context) (objstore.Store, objstore.Store, error) {
	cfg := a.Config
	switch cfg.RawStore {
	case config.StoreGCS:
		client, err := objstore.NewGCSClient(ctx, cfg.GCPCredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, namedCloser{"storage client", client})
		a.logger.Info("using gcs landing zone", "raw_bucket", cfg.RawBucket, "quarantine_bucket", cfg.QuarantineBucket)
		return objstore.NewGCSStore(client, cfg.RawBucket), objstore.NewGCSStore(client, cfg.QuarantineBucket), nil
	default:
		a.logger.Info("using local landing zone", "raw_dir", cfg.RawDir(), "quarantine_dir", cfg.QuarantineDir())
		return objstore.NewLocalStore(cfg.RawDir()), objstore.NewLocalStore(cfg.QuarantineDir()), nil
	}
}

// openEvents returns the publisher for EVENT_SINK, or nil for none, which
// makes the orchestrator log events instead.
func (a *App) openEvents(ctx context.Context) (pipeline.EventPublisher, error) {
	cfg := a.Config
	switch cfg.EventSink {
	case config.SinkKafka:
		p := kafkaadapter.NewPublisher(cfg, a.logger)
		a.closers = append(a.closers, namedCloser{"kafka publisher", p})
		return p, nil
	case config.SinkPubSub:
		p, err := pubsubadapter.NewPublisher(ctx, cfg.GCPProjectID, cfg.PubSubTopic, cfg.GCPCredentialsFile, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, namedCloser{"pubsub publisher", p})
		return p, nil
	default:
		return nil, nil
	}
}

func newAlerter(cfg *config.Config, logger *slog.Logger) pipeline.Alerter {
	if cfg.SlackWebhookURL == "" {
		return slack.NewLogNotifier(logger)
	}
	return slack.NewNotifier(cfg.SlackWebhookURL, cfg.IngestorTimeout, logger)
}

// CheckReadiness reports ready once the warehouse answers and the
// orchestrator still accepts runs.
func (a *App) CheckReadiness(ctx context.Context) error {
	if a.Warehouse == nil || a.Orchestrator == nil {
		return errors.New("service not initialized")
	}
	return a.Warehouse.CheckReadiness(ctx)
}

// Close releases everything Build opened, orchestrator first.
func (a *App) Close() error {
	var result *multierror.Error
	for _, c := range a.closers {
		if err := c.c.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return result.ErrorOrNil()
}
