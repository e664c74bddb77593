package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

// TableExists reports whether t has been created.
func (l *Loader) TableExists(ctx context.Context, t Table) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?",
		t.Schema, t.Name,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", t, err)
	}
	return n > 0, nil
}

// CountRows counts rows with from <= event_hour < to. A missing table has
// zero rows.
func (l *Loader) CountRows(ctx context.Context, t Table, from, to time.Time) (int, error) {
	exists, err := l.TableExists(ctx, t)
	if err != nil || !exists {
		return 0, err
	}
	var n int
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE event_hour >= ? AND event_hour < ?", t)
	if err := l.db.QueryRowContext(ctx, q, from.UTC(), to.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", t, err)
	}
	return n, nil
}

// CountDate counts rows whose event hour falls on the local date in loc.
func (l *Loader) CountDate(ctx context.Context, t Table, date string, loc *time.Location) (int, error) {
	start, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return 0, fmt.Errorf("parse date %q: %w", date, err)
	}
	return l.CountRows(ctx, t, start, start.AddDate(0, 0, 1))
}

// Snapshot reads every row of t ordered by key. Event hours and ingestion
// times come back in UTC.
func (l *Loader) Snapshot(ctx context.Context, t Table) ([]domain.Observation, error) {
	exists, err := l.TableExists(ctx, t)
	if err != nil || !exists {
		return nil, err
	}
	rows, err := l.db.QueryContext(ctx, t.selectSQL())
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", t, err)
	}
	defer rows.Close()

	variables := t.variables()
	var out []domain.Observation
	for rows.Next() {
		var (
			obs  domain.Observation
			kind string
			vals = make([]sql.NullFloat64, len(variables))
		)
		dest := []any{&obs.EventHour, &kind, &obs.Latitude, &obs.Longitude}
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		dest = append(dest, &obs.Source, &obs.IngestedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t, err)
		}
		obs.Kind = domain.Kind(kind)
		obs.EventHour = obs.EventHour.UTC()
		obs.IngestedAt = obs.IngestedAt.UTC()
		obs.Variables = make(map[string]*float64, len(variables))
		for i, v := range variables {
			if vals[i].Valid {
				f := vals[i].Float64
				obs.Variables[v.Name] = &f
			} else {
				obs.Variables[v.Name] = nil
			}
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

// Check is one warehouse integrity assertion.
type Check struct {
	Table  string
	Name   string
	Passed bool
	Detail string
}

// Verify runs integrity checks over every staging table: the table exists,
// holds rows, has no duplicate keys, and has no null primary variable.
func (l *Loader) Verify(ctx context.Context) ([]Check, error) {
	var checks []Check
	for _, t := range Tables() {
		exists, err := l.TableExists(ctx, t)
		if err != nil {
			return nil, err
		}
		checks = append(checks, Check{Table: t.String(), Name: "exists", Passed: exists})
		if !exists {
			continue
		}

		var total int
		if err := l.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", t)).Scan(&total); err != nil {
			return nil, fmt.Errorf("count %s: %w", t, err)
		}
		checks = append(checks, Check{Table: t.String(), Name: "non_empty", Passed: total > 0, Detail: fmt.Sprintf("%d rows", total)})

		var dupes int
		q := fmt.Sprintf(`SELECT COUNT(*) FROM (
  SELECT event_hour, kind, latitude, longitude FROM %s
  GROUP BY event_hour, kind, latitude, longitude
  HAVING COUNT(*) > 1
)`, t)
		if err := l.db.QueryRowContext(ctx, q).Scan(&dupes); err != nil {
			return nil, fmt.Errorf("duplicate check %s: %w", t, err)
		}
		checks = append(checks, Check{Table: t.String(), Name: "unique_keys", Passed: dupes == 0, Detail: fmt.Sprintf("%d duplicated keys", dupes)})

		schema, _ := domain.SchemaFor(t.Kind)
		var nulls int
		q = fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", t, schema.Primary)
		if err := l.db.QueryRowContext(ctx, q).Scan(&nulls); err != nil {
			return nil, fmt.Errorf("null check %s: %w", t, err)
		}
		checks = append(checks, Check{Table: t.String(), Name: "primary_not_null", Passed: nulls == 0, Detail: fmt.Sprintf("%d null %s", nulls, schema.Primary)})
	}
	return checks, nil
}
