// Package store loads cleaned encounter tables and run metadata into
// PostgreSQL.
package store

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"diabclean/internal/clean"
	"diabclean/internal/encounters"
	"diabclean/internal/icd9"
)

//go:embed sql/schema.sql
var schema string

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// Open connects to connStr and pings the server.
func Open(ctx context.Context, connStr string, log zerolog.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection: %w", err)
	}
	poolConfig.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	log.Debug().Msg("connected to PostgreSQL")

	return &Store{pool: pool, log: log}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema creates the bookkeeping tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// identifier splits an optionally schema-qualified table name.
func identifier(table string) (pgx.Identifier, error) {
	parts := strings.Split(table, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return pgx.Identifier(parts), nil
}

func columnType(t series.Type) string {
	switch t {
	case series.Int:
		return "BIGINT"
	case series.Float:
		return "DOUBLE PRECISION"
	case series.Bool:
		return "BOOLEAN"
	}
	return "TEXT"
}

// LoadFrame replaces table with the contents of df. The table is recreated
// with one column per frame column, then rows are copied in batches of
// batchSize, each batch in its own transaction.
func (s *Store) LoadFrame(ctx context.Context, table string, df dataframe.DataFrame, batchSize int) (int64, error) {
	if err := df.Error(); err != nil {
		return 0, err
	}
	if batchSize <= 0 {
		return 0, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	ident, err := identifier(table)
	if err != nil {
		return 0, err
	}

	names := df.Names()
	types := df.Types()
	defs := make([]string, len(names))
	for i, name := range names {
		defs[i] = pgx.Identifier{name}.Sanitize() + " " + columnType(types[i])
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+ident.Sanitize()); err != nil {
		tx.Rollback(ctx)
		return 0, fmt.Errorf("drop %s: %w", table, err)
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", ident.Sanitize(), strings.Join(defs, ", "))
	if _, err := tx.Exec(ctx, create); err != nil {
		tx.Rollback(ctx)
		return 0, fmt.Errorf("create %s: %w", table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	cols := make([][]any, len(names))
	for j, name := range names {
		cols[j] = encounters.Values(df.Col(name))
	}

	start := time.Now()
	lastLog := start
	total := df.Nrow()
	var copied int64

	for lo := 0; lo < total; lo += batchSize {
		hi := min(lo+batchSize, total)
		rows := make([][]any, 0, hi-lo)
		for i := lo; i < hi; i++ {
			row := make([]any, len(cols))
			for j := range cols {
				row[j] = sanitize(cols[j][i])
			}
			rows = append(rows, row)
		}

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return copied, fmt.Errorf("begin tx: %w", err)
		}
		n, err := tx.CopyFrom(ctx, ident, names, pgx.CopyFromRows(rows))
		if err != nil {
			tx.Rollback(ctx)
			return copied, fmt.Errorf("copy rows %d-%d: %w", lo, hi, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return copied, fmt.Errorf("commit: %w", err)
		}
		copied += n

		if time.Since(lastLog) >= 5*time.Second {
			elapsed := time.Since(start).Seconds()
			s.log.Info().
				Int64("rows", copied).
				Int("total", total).
				Float64("rows_per_sec", float64(copied)/elapsed).
				Msg("load progress")
			lastLog = time.Now()
		}
	}

	s.log.Info().
		Str("table", table).
		Int64("rows", copied).
		Dur("elapsed", time.Since(start)).
		Msg("loaded table")
	return copied, nil
}

// sanitize replaces invalid UTF-8 bytes in strings with spaces.
func sanitize(v any) any {
	if str, ok := v.(string); ok {
		return strings.ToValidUTF8(str, " ")
	}
	return v
}

// RecordRun stores a pipeline report and its steps.
func (s *Store) RecordRun(ctx context.Context, report *clean.Report, input, table string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var outTable *string
	if table != "" {
		outTable = &table
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO cleaning_runs
			(run_id, variant, input_path, output_table, started_at, finished_at, rows_in, rows_out, cols_in, cols_out)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		report.RunID, report.Variant, input, outTable,
		report.StartedAt, report.FinishedAt,
		report.RowsIn, report.RowsOut, report.ColsIn, report.ColsOut,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, st := range report.Steps {
		var detail *string
		if st.Detail != "" {
			detail = &st.Detail
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO cleaning_steps
				(run_id, position, name, rows_before, rows_after, cols_before, cols_after, skipped, detail, duration_ms)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			report.RunID, i, st.Name,
			st.RowsBefore, st.RowsAfter, st.ColsBefore, st.ColsAfter,
			st.Skipped, detail, float64(st.Duration)/float64(time.Millisecond),
		)
		if err != nil {
			return fmt.Errorf("insert step %s: %w", st.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpsertDescriptions stores lookup results keyed by code. A later lookup
// of the same code replaces the earlier one.
func (s *Store) UpsertDescriptions(ctx context.Context, results []icd9.Result) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range results {
		_, err := tx.Exec(ctx, `
			INSERT INTO icd9_descriptions (code, description, found, fetched_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (code) DO UPDATE
			SET description = EXCLUDED.description,
			    found = EXCLUDED.found,
			    fetched_at = EXCLUDED.fetched_at`,
			r.Code, strings.ToValidUTF8(r.Description, " "), r.Found, r.FetchedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("upsert %s: %w", r.Code, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(results), nil
}
