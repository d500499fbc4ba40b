// Package postgres provides a Postgres-backed ordered URL log.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/climatedb/internal/archive"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const (
	defaultTable = "url_log"
	// insertChunk keeps each INSERT well below the Postgres bind parameter limit.
	insertChunk = 1000
)

// Config controls the Postgres connection pool used for URL logs.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store holds the pool shared by every named log in one table.
type Store struct {
	pool  pool
	table string
	sql   sq.StatementBuilderType
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: connect postgres: %w", archive.ErrStorage, err)
	}
	return NewWithPool(p, cfg.Table)
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{
		pool:  p,
		table: table,
		sql:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the log table and its ordering index if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id           BIGSERIAL PRIMARY KEY,
	log_name     TEXT        NOT NULL,
	url          TEXT        NOT NULL,
	collected_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_name_id_idx ON %[1]s (log_name, id);`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("%w: ensure schema: %w", archive.ErrStorage, err)
	}
	return nil
}

// Log returns the ordered log stored under name.
func (s *Store) Log(name string) *Log {
	return &Log{store: s, name: name}
}

// Log is one named ordered log. Rows are ordered by their serial id, so
// appends are monotonic and a batch commits atomically.
type Log struct {
	store *Store
	name  string
}

// Name returns the log name.
func (l *Log) Name() string {
	return l.name
}

// Get returns every record in append order.
func (l *Log) Get(ctx context.Context) ([]archive.URLRecord, error) {
	query, args, err := l.store.sql.
		Select("url", "collected_at").
		From(l.store.table).
		Where(sq.Eq{"log_name": l.name}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := l.store.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query log %s: %w", archive.ErrStorage, l.name, err)
	}
	defer rows.Close()

	var records []archive.URLRecord
	for rows.Next() {
		var rec archive.URLRecord
		if err := rows.Scan(&rec.URL, &rec.CollectedAt); err != nil {
			return nil, fmt.Errorf("%w: scan log %s: %w", archive.ErrStorage, l.name, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate log %s: %w", archive.ErrStorage, l.name, err)
	}
	return records, nil
}

// Add appends records in one transaction. Duplicates are kept.
func (l *Log) Add(ctx context.Context, records []archive.URLRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := archive.CheckRecords(records); err != nil {
		return err
	}
	tx, err := l.store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin append %s: %w", archive.ErrStorage, l.name, err)
	}
	for start := 0; start < len(records); start += insertChunk {
		end := min(start+insertChunk, len(records))
		insert := l.store.sql.Insert(l.store.table).Columns("log_name", "url", "collected_at")
		for _, rec := range records[start:end] {
			insert = insert.Values(l.name, rec.URL, rec.CollectedAt.UTC())
		}
		query, args, err := insert.ToSql()
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("%w: append %s: %w", archive.ErrStorage, l.name, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit append %s: %w", archive.ErrStorage, l.name, err)
	}
	return nil
}

// Len returns the number of records in the log.
func (l *Log) Len(ctx context.Context) (int, error) {
	query, args, err := l.store.sql.
		Select("count(*)").
		From(l.store.table).
		Where(sq.Eq{"log_name": l.name}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int64
	if err := l.store.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count log %s: %w", archive.ErrStorage, l.name, err)
	}
	return int(n), nil
}
