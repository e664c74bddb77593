package objstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"sort"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/hashicorp/go-multierror"
)

const quarantineTimeLayout = "20060102T150405.000Z"

// QuarantineWriteError reports records that could not be persisted. The
// pipeline logs it and carries on.
type QuarantineWriteError struct {
	Records int
	Err     error
}

func (e *QuarantineWriteError) Error() string {
	return fmt.Sprintf("quarantine %d records: %v", e.Records, e.Err)
}

func (e *QuarantineWriteError) Unwrap() error { return e.Err }

// QuarantineSink writes rejected input under the partition's "bad/" prefix.
// Records sharing a partition, kind and reason go into one JSON array object.
type QuarantineSink struct {
	store  Store
	logger *slog.Logger
}

func NewQuarantineSink(store Store, logger *slog.Logger) *QuarantineSink {
	return &QuarantineSink{store: store, logger: logger}
}

type quarantineGroup struct {
	partition domain.PartitionKey
	kind      domain.Kind
	reason    domain.QuarantineReason
}

// QuarantineKey names the object for a group detected at the first record's
// DetectedAt, e.g. date=2025-10-05/hour=14/bad/weather_missing_required_field_20251005T070212.000Z.json.
func QuarantineKey(rec domain.QuarantineRecord) string {
	base := fmt.Sprintf("%s_%s_%s.json", rec.Kind, rec.Reason, rec.DetectedAt.UTC().Format(quarantineTimeLayout))
	return path.Join(rec.Partition.String(), "bad", base)
}

// Quarantine persists records write-once. Every group is attempted even if
// an earlier one fails.
func (s *QuarantineSink) Quarantine(ctx context.Context, records []domain.QuarantineRecord) error {
	if len(records) == 0 {
		return nil
	}

	groups := make(map[quarantineGroup][]domain.QuarantineRecord)
	for _, r := range records {
		g := quarantineGroup{partition: r.Partition, kind: r.Kind, reason: r.Reason}
		groups[g] = append(groups[g], r)
	}
	keys := make([]quarantineGroup, 0, len(groups))
	for g := range groups {
		keys = append(keys, g)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.partition != b.partition {
			return a.partition.Before(b.partition)
		}
		if a.kind != b.kind {
			return a.kind < b.kind
		}
		return a.reason < b.reason
	})

	var result *multierror.Error
	failed := 0
	for _, g := range keys {
		recs := groups[g]
		key := QuarantineKey(recs[0])
		data, err := json.MarshalIndent(recs, "", "  ")
		if err == nil {
			err = s.store.Create(ctx, key, data)
		}
		if err != nil {
			failed += len(recs)
			result = multierror.Append(result, fmt.Errorf("%s: %w", key, err))
			continue
		}
		s.logger.Info("quarantined records",
			"key", key,
			"records", len(recs),
			"reason", string(g.reason),
			"kind", string(g.kind),
		)
	}
	if err := result.ErrorOrNil(); err != nil {
		return &QuarantineWriteError{Records: failed, Err: err}
	}
	return nil
}
