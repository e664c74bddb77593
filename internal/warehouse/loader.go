// Package warehouse merges normalized observations into DuckDB staging tables.
//
// Each merge runs in one transaction that deletes every incoming key and
// re-inserts the batch, so re-loading a partition replaces its rows instead
// of duplicating them. Concurrent merges into the same table are serialized;
// merges into different tables proceed in parallel.
package warehouse

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/domain"

	_ "github.com/marcboeker/go-duckdb/v2" // registers the "duckdb" driver
)

// WriteError wraps any failure inside a merge. The transaction has been
// rolled back when it is returned.
type WriteError struct {
	Table string
	Op    string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("warehouse %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// MergeResult summarizes one merge.
type MergeResult struct {
	Table        string
	RowsWritten  int
	Deduplicated int
}

// Loader owns the DuckDB handle.
type Loader struct {
	db     *sql.DB
	logger *slog.Logger

	ddlMu sync.Mutex
	ready map[string]bool

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Open opens (or creates) the DuckDB file at path. An empty path opens an
// in-memory database.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Loader, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create warehouse directory: %w", err)
		}
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open warehouse %q: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping warehouse %q: %w", path, err)
	}
	return New(db, logger), nil
}

// New wraps an existing handle.
func New(db *sql.DB, logger *slog.Logger) *Loader {
	return &Loader{
		db:     db,
		logger: logger,
		ready:  make(map[string]bool),
		locks:  make(map[string]*sync.Mutex),
	}
}

func (l *Loader) Close() error {
	return l.db.Close()
}

// CheckReadiness pings the database.
func (l *Loader) CheckReadiness(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// Merge replaces every row in table whose key appears in records. Within the
// batch, the record with the greatest IngestedAt wins a key. Either all rows
// land or none do.
func (l *Loader) Merge(ctx context.Context, records []domain.Observation, table Table) (MergeResult, error) {
	if err := validateRows(records, table); err != nil {
		return MergeResult{}, &WriteError{Table: table.String(), Op: "validate", Err: err}
	}
	rows := dedupe(records)
	result := MergeResult{Table: table.String(), RowsWritten: len(rows), Deduplicated: len(records) - len(rows)}

	mu := l.tableLock(table)
	mu.Lock()
	defer mu.Unlock()

	if err := l.ensureTable(ctx, table); err != nil {
		return MergeResult{}, err
	}
	if len(rows) == 0 {
		return result, nil
	}

	start := time.Now()
	if err := l.replace(ctx, table, rows); err != nil {
		// The table may have been dropped underneath us; recreate next time.
		l.forget(table)
		return MergeResult{}, err
	}

	l.logger.Debug("warehouse merge committed",
		"table", table.String(),
		"rows", result.RowsWritten,
		"deduplicated", result.Deduplicated,
		"duration", time.Since(start),
	)
	return result, nil
}

func (l *Loader) replace(ctx context.Context, table Table, rows []domain.Observation) (err error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return &WriteError{Table: table.String(), Op: "begin", Err: err}
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				l.logger.Error("warehouse rollback failed", "table", table.String(), "error", rbErr)
			}
		}
	}()

	deleteSQL := table.deleteSQL()
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, deleteSQL, r.EventHour.UTC(), string(r.Kind), r.Latitude, r.Longitude); err != nil {
			return &WriteError{Table: table.String(), Op: "delete", Err: err}
		}
	}

	insertSQL := table.insertSQL()
	variables := table.variables()
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, insertSQL, insertArgs(r, variables)...); err != nil {
			return &WriteError{Table: table.String(), Op: "insert", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &WriteError{Table: table.String(), Op: "commit", Err: err}
	}
	return nil
}

// validateRows rejects records of another kind and values the table's
// columns cannot hold. Nothing is written when it fails.
func validateRows(records []domain.Observation, table Table) error {
	variables := table.variables()
	for i, r := range records {
		if r.Kind != table.Kind {
			return fmt.Errorf("record %d has kind %s, table holds %s", i, r.Kind, table.Kind)
		}
		for _, v := range variables {
			if val := r.Variables[v.Name]; val != nil && !v.Fits(*val) {
				return fmt.Errorf("record %d: %s value %g out of range", i, v.Name, *val)
			}
		}
	}
	return nil
}

func insertArgs(r domain.Observation, variables []domain.Variable) []any {
	args := make([]any, 0, len(variables)+6)
	args = append(args, r.EventHour.UTC(), string(r.Kind), r.Latitude, r.Longitude)
	for _, v := range variables {
		val := r.Variables[v.Name]
		switch {
		case val == nil:
			args = append(args, nil)
		case v.Integer:
			args = append(args, int64(math.Round(*val)))
		default:
			args = append(args, *val)
		}
	}
	return append(args, r.Source, r.IngestedAt.UTC())
}

// dedupe keeps the latest-ingested record per key and orders the survivors
// by event hour then coordinates.
func dedupe(records []domain.Observation) []domain.Observation {
	latest := make(map[domain.ObservationKey]int, len(records))
	for i, r := range records {
		k := r.Key()
		if j, ok := latest[k]; ok && records[j].IngestedAt.After(r.IngestedAt) {
			continue
		}
		latest[k] = i
	}
	out := make([]domain.Observation, 0, len(latest))
	for _, i := range latest {
		out = append(out, records[i])
	}
	slices.SortFunc(out, func(a, b domain.Observation) int {
		if c := a.EventHour.Compare(b.EventHour); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Latitude, b.Latitude); c != 0 {
			return c
		}
		return cmp.Compare(a.Longitude, b.Longitude)
	})
	return out
}

func (l *Loader) tableLock(t Table) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	mu, ok := l.locks[t.String()]
	if !ok {
		mu = &sync.Mutex{}
		l.locks[t.String()] = mu
	}
	return mu
}

// ensureTable creates the schema and table on first use. DDL is serialized
// across tables because concurrent CREATE SCHEMA conflicts in DuckDB.
func (l *Loader) ensureTable(ctx context.Context, t Table) error {
	l.ddlMu.Lock()
	defer l.ddlMu.Unlock()
	if l.ready[t.String()] {
		return nil
	}
	if _, err := l.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+t.Schema); err != nil {
		return &WriteError{Table: t.String(), Op: "create schema", Err: err}
	}
	if _, err := l.db.ExecContext(ctx, t.createSQL()); err != nil {
		return &WriteError{Table: t.String(), Op: "create table", Err: err}
	}
	l.ready[t.String()] = true
	return nil
}

func (l *Loader) forget(t Table) {
	l.ddlMu.Lock()
	defer l.ddlMu.Unlock()
	delete(l.ready, t.String())
}
