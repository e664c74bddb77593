// Package scheduler fires one partition run per cron tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
	"github.com/couchcryptid/air-quality-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

// RunStarter launches a background run for a partition.
type RunStarter interface {
	Start(p domain.PartitionKey) (pipeline.Run, error)
}

// Scheduler resolves the target partition on every tick of a cron schedule
// evaluated in the resolver's timezone.
type Scheduler struct {
	cron     *cron.Cron
	spec     string
	runs     RunStarter
	resolver domain.PartitionResolver
	offset   int
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New parses spec (standard five-field cron) and returns a stopped
// scheduler. hourOffset shifts the target partition relative to the tick,
// e.g. -1 loads the previous hour. A nil clock uses real time.
func New(spec string, hourOffset int, runs RunStarter, resolver domain.PartitionResolver, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) (*Scheduler, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(resolver.Location())),
		spec:     spec,
		runs:     runs,
		resolver: resolver,
		offset:   hourOffset,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
	if _, err := s.cron.AddFunc(spec, s.Tick); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return s, nil
}

// Tick starts a run for the partition due now. A partition that still has a
// live run is skipped.
func (s *Scheduler) Tick() {
	p := s.resolver.ResolveOffset(s.clock.Now(), s.offset)
	run, err := s.runs.Start(p)
	switch {
	case errors.Is(err, pipeline.ErrRunInFlight):
		s.logger.Warn("scheduled run skipped, previous run still in flight", "partition", p.String())
	case err != nil:
		s.logger.Error("scheduled run not started", "partition", p.String(), "error", err)
	default:
		s.logger.Info("scheduled run started", "partition", p.String(), "run_id", run.ID)
	}
}

// Next returns the next tick after now.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Schedule.Next(s.clock.Now().In(s.resolver.Location()))
}

// Run fires ticks until ctx is cancelled, then waits for the tick in
// progress, if any, to return.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"schedule", s.spec,
		"timezone", s.resolver.Location().String(),
		"hour_offset", s.offset,
		"next", s.Next(),
	)
	s.metrics.SchedulerRunning.Set(1)
	defer s.metrics.SchedulerRunning.Set(0)

	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()

	s.logger.Info("scheduler stopped", "reason", ctx.Err())
	return nil
}
