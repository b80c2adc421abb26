// Package postgres persists batches and their records in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/realtime-news-aggregator/internal/hash/sha256"
	"github.com/JakeFAU/realtime-news-aggregator/internal/news"
)

const (
	defaultTable      = "news_records"
	defaultBatchTable = "news_batches"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool and table names.
type Config struct {
	DSN             string
	Table           string
	BatchTable      string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// NewsStore writes one row per batch and upserts one row per record, keyed
// by the hash of the canonical link.
type NewsStore struct {
	pool       pool
	table      string
	batchTable string
	hasher     *sha256.Hasher
}

// NewNewsStore creates a Postgres-backed NewsStore using the provided config.
func NewNewsStore(ctx context.Context, cfg Config) (*NewsStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
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
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewNewsStoreWithPool(p, cfg.Table, cfg.BatchTable)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewNewsStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewNewsStoreWithPool(p pool, table, batchTable string) (*NewsStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if batchTable == "" {
		batchTable = defaultBatchTable
	}
	for _, name := range []string{table, batchTable} {
		if !validTableName.MatchString(name) {
			return nil, fmt.Errorf("invalid table name %q", name)
		}
	}
	return &NewsStore{pool: p, table: table, batchTable: batchTable, hasher: sha256.New()}, nil
}

// Close releases the underlying pool resources.
func (s *NewsStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the tables when they do not exist.
func (s *NewsStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id         UUID PRIMARY KEY,
	update_time    TIMESTAMPTZ NOT NULL,
	total          INTEGER NOT NULL,
	failed_sources JSONB NOT NULL DEFAULT '[]'
);
CREATE TABLE IF NOT EXISTS %s (
	id           TEXT PRIMARY KEY,
	link         TEXT NOT NULL,
	title        TEXT NOT NULL,
	source       TEXT NOT NULL,
	category     TEXT NOT NULL,
	scraped_at   TIMESTAMPTZ NOT NULL,
	published_at TIMESTAMPTZ,
	first_run_id UUID NOT NULL,
	last_run_id  UUID NOT NULL
)`, s.batchTable, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveBatch stores the batch row and upserts every record in one transaction.
func (s *NewsStore) SaveBatch(ctx context.Context, batch news.Batch) (err error) {
	if s == nil || s.pool == nil {
		return fmt.Errorf("news store is not configured")
	}
	if batch.RunID == "" {
		return fmt.Errorf("batch run id is required")
	}
	failed, err := json.Marshal(failedSources(batch))
	if err != nil {
		return fmt.Errorf("marshal failed sources: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	batchQuery := fmt.Sprintf(`
INSERT INTO %s (run_id, update_time, total, failed_sources)
VALUES ($1,$2,$3,$4)`, s.batchTable)
	if _, err = tx.Exec(ctx, batchQuery, batch.RunID, batch.UpdateTime, batch.Total, failed); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	recordQuery := fmt.Sprintf(`
INSERT INTO %s (id, link, title, source, category, scraped_at, published_at, first_run_id, last_run_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	published_at = COALESCE(EXCLUDED.published_at, %s.published_at),
	last_run_id = EXCLUDED.last_run_id`, s.table, s.table)
	for _, rec := range batch.News {
		if _, err = tx.Exec(ctx, recordQuery,
			s.hasher.Key(rec.Link),
			rec.Link,
			rec.Title,
			rec.Source,
			string(rec.Category),
			rec.ScrapedAt,
			rec.PublishedAt,
			batch.RunID,
		); err != nil {
			return fmt.Errorf("upsert record %s: %w", rec.Link, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func failedSources(batch news.Batch) []string {
	out := []string{}
	for _, r := range batch.Reports {
		if r.Err != nil {
			out = append(out, r.Source)
		}
	}
	return out
}
