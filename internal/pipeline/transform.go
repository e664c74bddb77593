package pipeline

import (
	"context"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// normalize fetches every artifact, explodes each payload into
// observations and quarantines what it rejects. Only the fetch is retried;
// decoding the same bytes again cannot change the outcome.
func (o *Orchestrator) normalize(ctx context.Context, rs *runState) (event, error) {
	ctx, span := tracer.Start(ctx, "pipeline.normalize")
	defer span.End()

	refs := rs.run.Artifacts
	var payloads [][]byte
	err := o.withRetry(ctx, stageNormalize, o.opts.NormalizeRetry, rs.logger, func(ctx context.Context) error {
		var err error
		payloads, err = o.fetchAll(ctx, refs)
		return err
	})
	if err != nil {
		return 0, err
	}

	p := rs.run.Partition
	window := domain.NewWindow(p, o.opts.Window, o.opts.TimeZone)
	observations := make(map[domain.Kind][]domain.Observation)
	var rejects []domain.QuarantineRecord
	for i, ref := range refs {
		obs, bad := transformArtifact(ref, payloads[i], window)
		observations[ref.Kind] = append(observations[ref.Kind], obs...)
		rejects = append(rejects, bad...)
	}

	accepted := make(map[domain.Kind]int, len(observations))
	for kind, obs := range observations {
		accepted[kind] = len(obs)
		o.metrics.ObservationsAccepted.WithLabelValues(string(kind)).Add(float64(len(obs)))
	}
	for _, r := range rejects {
		o.metrics.ObservationsQuarantined.WithLabelValues(string(r.Reason)).Inc()
	}
	rs.observations = observations
	rs.run.Accepted = accepted
	rs.run.Quarantined = len(rejects)
	span.SetAttributes(attribute.Int("quarantined", len(rejects)))
	rs.logger.Info("artifacts normalized",
		"artifacts", len(refs),
		"accepted", accepted,
		"quarantined", len(rejects),
		"window", string(o.opts.Window),
	)

	o.quarantine(ctx, rs, rejects)
	return evNormalized, nil
}

// transformArtifact turns one raw artifact into observations for window.
// A payload that does not decode is quarantined whole.
func transformArtifact(ref domain.RawArtifactRef, data []byte, window domain.Window) ([]domain.Observation, []domain.QuarantineRecord) {
	payload, err := domain.DecodePayload(ref.Kind, data, window.Location())
	if err != nil {
		return nil, []domain.QuarantineRecord{
			domain.NewQuarantineRecord(window.Partition, ref.Kind, domain.ReasonMalformedPayload, err, domain.Fragment(data)),
		}
	}
	return domain.NormalizeWindow(payload, window)
}

// fetchAll reads refs concurrently and returns their contents in input
// order.
func (o *Orchestrator) fetchAll(ctx context.Context, refs []domain.RawArtifactRef) ([][]byte, error) {
	payloads := make([][]byte, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.FetchConcurrency)
	for i, ref := range refs {
		g.Go(func() error {
			data, err := o.deps.Source.Read(gctx, ref.Name)
			if err != nil {
				return &ArtifactReadError{Name: ref.Name, Err: err}
			}
			payloads[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return payloads, nil
}

// quarantine persists rejects. Failures are logged and never fail the run.
func (o *Orchestrator) quarantine(ctx context.Context, rs *runState, records []domain.QuarantineRecord) {
	if len(records) == 0 {
		return
	}
	now := o.clock.Now().UTC()
	for i := range records {
		records[i].DetectedAt = now
	}
	if err := o.deps.Quarantine.Quarantine(ctx, records); err != nil {
		o.metrics.QuarantineWriteErrors.Inc()
		rs.logger.Error("quarantine write failed", "records", len(records), "error", err)
	}
}
