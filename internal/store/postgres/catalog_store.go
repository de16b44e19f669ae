// Package postgres provides the Postgres-backed catalog store.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dosevalidator/dpd-enricher/internal/catalog"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for catalog rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
}

// CatalogStore reads pending work from and writes enrichment results into
// the drug product table. Errors carry a catalog.ErrorKind so callers can
// apply the retry taxonomy without touching driver types.
type CatalogStore struct {
	pool  dbPool
	table string
}

// NewCatalogStore creates a Postgres-backed CatalogStore using the provided config.
func NewCatalogStore(ctx context.Context, cfg Config) (*CatalogStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "dpd_drug_product_all"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, classified(fmt.Errorf("connect postgres: %w", err))
	}
	return &CatalogStore{
		pool:  pool,
		table: table,
	}, nil
}

// NewCatalogStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewCatalogStoreWithPool(pool dbPool, table string) (*CatalogStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "dpd_drug_product_all"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &CatalogStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *CatalogStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// PendingBatch returns up to limit rows still awaiting a monograph lookup.
// An empty slice means there is no pending work left.
func (s *CatalogStore) PendingBatch(ctx context.Context, limit int) ([]catalog.WorkItem, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	query := fmt.Sprintf(`
SELECT id, drug_code
FROM %s
WHERE pm_status = $1
LIMIT $2`, s.table)

	rows, err := s.pool.Query(ctx, query, string(catalog.StatusPending), limit)
	if err != nil {
		return nil, classified(fmt.Errorf("query pending batch: %w", err))
	}
	defer rows.Close()

	var items []catalog.WorkItem
	for rows.Next() {
		var item catalog.WorkItem
		if err := rows.Scan(&item.ID, &item.DrugCode); err != nil {
			return nil, classified(fmt.Errorf("scan pending row: %w", err))
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, classified(fmt.Errorf("read pending batch: %w", err))
	}
	return items, nil
}

// WriteResult records one enrichment outcome against its row. The update is
// keyed by id and overwrites any previous attempt, so replays are safe.
func (s *CatalogStore) WriteResult(ctx context.Context, res catalog.FetchResult) error {
	if res.ID == "" {
		return catalog.WithKind(catalog.KindPermanent, fmt.Errorf("result id is required"))
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	pm_pdf_url = $2,
	pm_date = $3,
	pm_status = $4,
	pm_error = $5,
	pm_checked_at = now()
WHERE id = $1`, s.table)

	args := []any{
		res.ID,
		nullable(res.PDFURL),
		nullable(res.MonographDate),
		string(res.Status),
		nullable(res.ErrorText),
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return classified(fmt.Errorf("update result for id=%s: %w", res.ID, err))
	}
	return nil
}

// InsertProducts upserts a batch of imported product rows keyed by
// unique_key, seeding pm_status to pending for fresh rows.
func (s *CatalogStore) InsertProducts(ctx context.Context, products []catalog.Product) error {
	if len(products) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	status_set,
	source_file,
	drug_code,
	din,
	brand_name,
	pediatric_flag,
	last_update_date,
	raw,
	unique_key,
	pm_status
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (unique_key) DO UPDATE SET
	source_file = EXCLUDED.source_file,
	drug_code = EXCLUDED.drug_code,
	din = EXCLUDED.din,
	brand_name = EXCLUDED.brand_name,
	pediatric_flag = EXCLUDED.pediatric_flag,
	last_update_date = EXCLUDED.last_update_date,
	raw = EXCLUDED.raw`, s.table)

	batch := &pgx.Batch{}
	for _, p := range products {
		rawJSON, err := json.Marshal(p.Raw)
		if err != nil {
			return catalog.WithKind(catalog.KindPermanent, fmt.Errorf("marshal raw record: %w", err))
		}
		batch.Queue(query,
			p.ID,
			p.StatusSet,
			p.SourceFile,
			nullable(p.DrugCode),
			nullable(p.DIN),
			nullable(p.BrandName),
			nullable(p.PediatricFlag),
			nullable(p.LastUpdateDate),
			rawJSON,
			p.UniqueKey,
			string(catalog.StatusPending),
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range products {
		if _, err := results.Exec(); err != nil {
			return classified(fmt.Errorf("insert product batch: %w", err))
		}
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
