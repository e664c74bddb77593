package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
	"github.com/couchcryptid/air-quality-etl/internal/warehouse"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/couchcryptid/air-quality-etl/internal/pipeline")

// ArtifactSource lists and reads raw artifacts in the landing zone.
type ArtifactSource interface {
	List(ctx context.Context, p domain.PartitionKey) ([]domain.RawArtifactRef, error)
	Read(ctx context.Context, name string) ([]byte, error)
}

// Trigger asks the ingestor to fetch upstream data.
type Trigger interface {
	Trigger(ctx context.Context, req domain.TriggerRequest) error
}

// QuarantineSink persists rejected input.
type QuarantineSink interface {
	Quarantine(ctx context.Context, records []domain.QuarantineRecord) error
}

// WarehouseLoader merges observations into a warehouse table.
type WarehouseLoader interface {
	Merge(ctx context.Context, records []domain.Observation, table warehouse.Table) (warehouse.MergeResult, error)
}

// EventPublisher announces loaded partitions to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.PartitionLoadedEvent) error
}

// Alerter notifies operators about runs that did not succeed.
type Alerter interface {
	Alert(ctx context.Context, a domain.Alert) error
}

// Deps are the collaborators of an Orchestrator. Source, Quarantine and
// Warehouse are required; the rest fall back to logging when nil.
type Deps struct {
	Source     ArtifactSource
	Trigger    Trigger
	Quarantine QuarantineSink
	Warehouse  WarehouseLoader
	Events     EventPublisher
	Alerts     Alerter
}

// StageRetry bounds retries of a stage. Attempts are separated by a fixed
// Delay.
type StageRetry struct {
	MaxAttempts int
	Delay       time.Duration
}

// Options tune a run. Zero values are replaced by the defaults noted on
// each field.
type Options struct {
	Location         domain.Location
	TimeZone         *time.Location // UTC
	MinArtifactBytes int64
	MinArtifacts     int           // 1
	PollInterval     time.Duration // 30s
	PollTimeout      time.Duration
	NormalizeRetry   StageRetry // 1 attempt
	LoadRetry        StageRetry // 1 attempt
	Window           domain.WindowScope
	FetchConcurrency int           // 4
	HistoryTTL       time.Duration // 24h
	Clock            clockwork.Clock
}

func (o Options) withDefaults() Options {
	if o.TimeZone == nil {
		o.TimeZone = time.UTC
	}
	if o.MinArtifacts < 1 {
		o.MinArtifacts = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 30 * time.Second
	}
	if o.PollTimeout < 0 {
		o.PollTimeout = 0
	}
	if o.NormalizeRetry.MaxAttempts < 1 {
		o.NormalizeRetry.MaxAttempts = 1
	}
	if o.LoadRetry.MaxAttempts < 1 {
		o.LoadRetry.MaxAttempts = 1
	}
	if o.Window == "" {
		o.Window = domain.ScopeHour
	}
	if o.FetchConcurrency < 1 {
		o.FetchConcurrency = 4
	}
	if o.HistoryTTL <= 0 {
		o.HistoryTTL = 24 * time.Hour
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

// Orchestrator drives partition runs through the state machine in state.go.
// Runs for different partitions proceed independently; a partition never
// has more than one live run.
type Orchestrator struct {
	deps     Deps
	opts     Options
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
	registry *registry
	newID    func() string

	// mu orders Start's wg.Add against Close.
	mu     sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an Orchestrator. Background runs started with Start share a
// lifetime context that Close cancels.
func New(deps Deps, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	opts = opts.withDefaults()
	if deps.Trigger == nil {
		deps.Trigger = logTrigger{logger: logger}
	}
	if deps.Events == nil {
		deps.Events = logPublisher{logger: logger}
	}
	if deps.Alerts == nil {
		deps.Alerts = logAlerter{logger: logger}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		deps:     deps,
		opts:     opts,
		clock:    opts.Clock,
		logger:   logger,
		metrics:  metrics,
		registry: newRegistry(opts.HistoryTTL),
		newID:    uuid.NewString,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Resolver maps instants to partitions in the orchestrator's timezone.
func (o *Orchestrator) Resolver() domain.PartitionResolver {
	return domain.NewPartitionResolver(o.opts.TimeZone)
}

// Start launches a run for p in the background and returns its initial
// snapshot. It returns ErrRunInFlight if p already has a live run.
func (o *Orchestrator) Start(p domain.PartitionKey) (Run, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return Run{}, ErrClosed
	}
	run, err := o.admit(p)
	if err != nil {
		o.mu.Unlock()
		return Run{}, err
	}
	snap := run.snapshot()
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		o.execute(o.ctx, run)
	}()
	return snap, nil
}

// Run executes a run for p synchronously and returns the finished record.
// The only error is ErrRunInFlight; run failures are reported through
// Run.Result.
func (o *Orchestrator) Run(ctx context.Context, p domain.PartitionKey) (Run, error) {
	run, err := o.admit(p)
	if err != nil {
		return Run{}, err
	}
	return o.execute(ctx, run), nil
}

// Status returns the live run for p, or the last finished one while it is
// still in history.
func (o *Orchestrator) Status(p domain.PartitionKey) (Run, bool) {
	return o.registry.lookup(p)
}

// Wait blocks until every background run has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close cancels background runs and waits for them to finish. Cancelled
// runs end as ERROR and stay in history. Start fails with ErrClosed once
// Close has begun.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	o.closed = true
	o.cancel()
	o.mu.Unlock()

	if n := o.registry.inFlight(); n > 0 {
		o.logger.Info("cancelling in-flight runs", "count", n)
	}
	o.wg.Wait()
	o.registry.prune()
	return nil
}

func (o *Orchestrator) admit(p domain.PartitionKey) (*Run, error) {
	run := newRun(o.newID(), p, o.clock.Now())
	if err := o.registry.acquire(run.snapshot()); err != nil {
		o.metrics.RunsRejected.Inc()
		o.logger.Warn("run rejected", "partition", p.String(), "error", err)
		return nil, err
	}
	return run, nil
}

// execute walks run to StateNotified and releases the partition.
func (o *Orchestrator) execute(ctx context.Context, run *Run) Run {
	ctx, span := tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("partition", run.Partition.String()),
		attribute.String("run_id", run.ID),
	))
	defer span.End()

	logger := o.logger.With("partition", run.Partition.String(), "run_id", run.ID)
	logger.Info("run started")
	o.metrics.RunsStarted.Inc()
	o.metrics.RunsInFlight.Inc()
	defer o.metrics.RunsInFlight.Dec()

	rs := &runState{run: run, logger: logger}
	for !run.Done() {
		from := run.State
		ev, err := o.step(ctx, rs)
		if err != nil {
			err = run.fail(err)
		} else {
			err = run.fire(ev)
		}
		if err != nil {
			// Only reachable through a bug in a step; stop rather than loop.
			logger.Error("invalid transition", "error", err)
			run.State = StateNotified
			run.Result = ResultError
			run.Path = append(run.Path, StateNotified)
		}
		logger.Debug("run transition", "from", from.String(), "to", run.State.String())
		o.registry.update(run.snapshot())
	}

	run.FinishedAt = o.clock.Now()
	o.notify(ctx, rs)

	o.metrics.RunsFinished.WithLabelValues(run.Result.String()).Inc()
	o.metrics.RunDuration.Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	span.SetAttributes(attribute.String("result", run.Result.String()))
	if run.Result == ResultError {
		span.SetStatus(codes.Error, run.Error)
	}
	logger.Info("run finished",
		"result", run.Result.String(),
		"gate", run.Gate,
		"rows_written", run.RowsWritten,
		"quarantined", run.Quarantined,
		"error_kind", run.ErrorKind,
		"duration", run.FinishedAt.Sub(run.StartedAt),
	)

	final := run.snapshot()
	o.registry.release(final)
	return final
}

// step runs the work of the current state and returns the event it
// produced.
func (o *Orchestrator) step(ctx context.Context, rs *runState) (event, error) {
	switch rs.run.State {
	case StateTriggered:
		return o.trigger(ctx, rs)
	case StateAwaitingData:
		return o.awaitData(ctx, rs)
	case StateQualityGated:
		return o.gate(rs), nil
	case StateNormalizing:
		return o.normalize(ctx, rs)
	case StateLoading:
		return o.load(ctx, rs)
	default:
		return 0, &InvalidTransitionError{From: rs.run.State}
	}
}

// runState carries data between the steps of one run.
type runState struct {
	run          *Run
	logger       *slog.Logger
	observations map[domain.Kind][]domain.Observation
	ingestedAt   time.Time
}
