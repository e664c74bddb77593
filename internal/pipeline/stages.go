package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/warehouse"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	stageNormalize = "normalize"
	stageLoad      = "load"
)

// trigger asks the ingestor for the run's hour. Failures are logged only:
// the artifacts may land anyway, and the poll decides.
func (o *Orchestrator) trigger(ctx context.Context, rs *runState) (event, error) {
	ctx, span := tracer.Start(ctx, "pipeline.trigger")
	defer span.End()

	req := domain.TriggerRequest{
		Location:   o.opts.Location,
		HourOffset: hourOffset(rs.run.Partition, o.clock.Now(), o.opts.TimeZone),
	}
	if err := o.deps.Trigger.Trigger(ctx, req); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("trigger: %w", ctx.Err())
		}
		o.metrics.TriggerErrors.Inc()
		rs.logger.Warn("ingestion trigger failed", "error", err)
	}
	return evTriggered, nil
}

// hourOffset is the partition's start relative to the current hour, so a
// replay of an older partition asks the ingestor for that hour.
func hourOffset(p domain.PartitionKey, now time.Time, loc *time.Location) int {
	return int(p.Start(loc).Sub(domain.TruncateHour(now, loc)) / time.Hour)
}

// awaitData polls the landing zone until MinArtifacts are listed or
// PollTimeout elapses. On timeout the last listing is kept, which may be
// empty; the gate turns that into a no-data failure.
func (o *Orchestrator) awaitData(ctx context.Context, rs *runState) (event, error) {
	ctx, span := tracer.Start(ctx, "pipeline.await_data")
	defer span.End()

	p := rs.run.Partition
	deadline := o.clock.Now().Add(o.opts.PollTimeout)
	var last []domain.RawArtifactRef
	for {
		refs, err := o.deps.Source.List(ctx, p)
		switch {
		case err != nil && ctx.Err() != nil:
			return 0, fmt.Errorf("await data: %w", ctx.Err())
		case err != nil:
			rs.logger.Warn("list artifacts failed", "error", err)
		default:
			last = refs
		}
		if len(last) >= o.opts.MinArtifacts {
			break
		}

		remaining := deadline.Sub(o.clock.Now())
		if remaining <= 0 {
			terr := &TimeoutError{Partition: p, Timeout: o.opts.PollTimeout, Seen: len(last), Want: o.opts.MinArtifacts}
			o.metrics.PollTimeouts.Inc()
			rs.logger.Warn("artifact poll timed out", "error", terr)
			break
		}
		if !o.sleep(ctx, min(o.opts.PollInterval, remaining)) {
			return 0, fmt.Errorf("await data: %w", ctx.Err())
		}
	}

	rs.run.Artifacts = last
	o.metrics.ArtifactsSeen.Observe(float64(len(last)))
	span.SetAttributes(attribute.Int("artifacts", len(last)))
	rs.logger.Info("artifacts collected", "count", len(last))
	return evDataCollected, nil
}

func (o *Orchestrator) gate(rs *runState) event {
	decision := domain.EvaluateQuality(rs.run.Artifacts, o.opts.MinArtifactBytes)
	rs.run.Gate = decision.String()
	if decision.Passed() {
		rs.logger.Info("quality gate passed", "artifacts", len(rs.run.Artifacts))
		return evGatePassed
	}

	err := decision.Err()
	rs.run.err = err
	rs.run.Error = err.Error()
	rs.run.ErrorKind = domain.ErrorKind(err)
	rs.logger.Warn("quality gate failed", "decision", rs.run.Gate)
	return evGateFailed
}

// load merges each kind's observations into its table. Tables already
// merged survive a retry of the stage untouched.
func (o *Orchestrator) load(ctx context.Context, rs *runState) (event, error) {
	ctx, span := tracer.Start(ctx, "pipeline.load")
	defer span.End()

	var tables []warehouse.Table
	for _, kind := range artifactKinds(rs.run.Artifacts) {
		if t, ok := warehouse.TableFor(kind); ok {
			tables = append(tables, t)
		}
	}

	rows := make(map[string]int, len(tables))
	err := o.withRetry(ctx, stageLoad, o.opts.LoadRetry, rs.logger, func(ctx context.Context) error {
		for _, t := range tables {
			if _, done := rows[t.String()]; done {
				continue
			}
			res, err := o.deps.Warehouse.Merge(ctx, rs.observations[t.Kind], t)
			if err != nil {
				return err
			}
			rows[t.String()] = res.RowsWritten
			o.metrics.RowsWritten.WithLabelValues(t.String()).Add(float64(res.RowsWritten))
			rs.logger.Info("table merged",
				"table", t.String(),
				"rows", res.RowsWritten,
				"deduplicated", res.Deduplicated,
			)
		}
		return nil
	})
	rs.run.RowsWritten = rows
	if err != nil {
		return 0, err
	}
	rs.ingestedAt = o.clock.Now()
	return evLoaded, nil
}

// notify reports the terminal result: an event on success, an alert
// otherwise. Delivery failures are logged and do not change the result.
func (o *Orchestrator) notify(ctx context.Context, rs *runState) {
	ctx, span := tracer.Start(ctx, "pipeline.notify", trace.WithAttributes(
		attribute.String("result", rs.run.Result.String()),
	))
	defer span.End()

	// Delivery is attempted even when the run was cancelled.
	ctx = context.WithoutCancel(ctx)
	run := rs.run

	if run.Result == ResultSuccess {
		evt := domain.PartitionLoadedEvent{
			RunID:        run.ID,
			Partition:    run.Partition.String(),
			ArtifactRefs: artifactNames(run.Artifacts),
			RowsWritten:  run.RowsWritten,
			IngestedAt:   rs.ingestedAt.UTC(),
		}
		if err := o.deps.Events.Publish(ctx, evt); err != nil {
			o.metrics.PublishErrors.Inc()
			rs.logger.Error("publish partition loaded event failed", "error", err)
			return
		}
		o.metrics.EventsPublished.Inc()
		return
	}

	alert := domain.Alert{
		RunID:     run.ID,
		Partition: run.Partition,
		Severity:  domain.SeverityError,
		Result:    run.Result.String(),
		ErrorKind: run.ErrorKind,
		Message:   run.Error,
	}
	if run.Result == ResultQualityFailed {
		alert.Severity = domain.SeverityWarning
		alert.Message = fmt.Sprintf("no usable data for partition: %s", run.Gate)
	}
	if err := o.deps.Alerts.Alert(ctx, alert); err != nil {
		o.metrics.AlertErrors.Inc()
		rs.logger.Error("send alert failed", "error", err)
	}
}

// artifactKinds returns the kinds present in refs in domain.Kinds order.
func artifactKinds(refs []domain.RawArtifactRef) []domain.Kind {
	seen := make(map[domain.Kind]bool, len(refs))
	for _, r := range refs {
		seen[r.Kind] = true
	}
	var kinds []domain.Kind
	for _, k := range domain.Kinds() {
		if seen[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func artifactNames(refs []domain.RawArtifactRef) []string {
	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.Name
	}
	return names
}

type logTrigger struct{ logger *slog.Logger }

func (t logTrigger) Trigger(_ context.Context, req domain.TriggerRequest) error {
	t.logger.Info("ingestion trigger disabled, waiting for artifacts",
		"city", req.Location.City, "hour_offset", req.HourOffset)
	return nil
}

type logPublisher struct{ logger *slog.Logger }

func (p logPublisher) Publish(_ context.Context, evt domain.PartitionLoadedEvent) error {
	p.logger.Info("partition loaded", "partition", evt.Partition, "rows_written", evt.RowsWritten)
	return nil
}

type logAlerter struct{ logger *slog.Logger }

func (a logAlerter) Alert(_ context.Context, alert domain.Alert) error {
	a.logger.Warn("run alert",
		"partition", alert.Partition.String(),
		"severity", string(alert.Severity),
		"result", alert.Result,
		"error_kind", alert.ErrorKind,
		"message", alert.Message,
	)
	return nil
}
