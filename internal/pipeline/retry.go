package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// withRetry calls fn until it succeeds or policy.MaxAttempts is spent,
// sleeping policy.Delay between attempts.
func (o *Orchestrator) withRetry(ctx context.Context, stage string, policy StageRetry, logger *slog.Logger, fn func(context.Context) error) error {
	var err error
	attempt := 0
	for attempt < policy.MaxAttempts {
		attempt++
		o.metrics.StageAttempts.WithLabelValues(stage).Inc()
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		if attempt == policy.MaxAttempts {
			break
		}
		logger.Warn("stage attempt failed, retrying",
			"stage", stage,
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"retry_in", policy.Delay,
			"error", err,
		)
		if !o.sleep(ctx, policy.Delay) {
			break
		}
	}

	o.metrics.StageFailures.WithLabelValues(stage).Inc()
	if ctx.Err() != nil {
		return fmt.Errorf("%s interrupted after %d attempts: %w", stage, attempt, ctx.Err())
	}
	return fmt.Errorf("%s failed after %d attempts: %w", stage, attempt, err)
}

// sleep waits for d on the orchestrator clock. It returns false if ctx is
// done first.
func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := o.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
