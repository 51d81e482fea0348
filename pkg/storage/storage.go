// Package storage persists the current product snapshot in a SQLite
// table keyed by product URL. The table is also the read-only contract
// consumed by the listing and detail UIs.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"

	"github.com/avilaton/atomo-pricewatch/pkg/scraper"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	url TEXT PRIMARY KEY,
	name TEXT,
	price_ars REAL,
	image_url TEXT,
	scraped_at TEXT
)`

type Store struct {
	db  *sqlx.DB
	log *zap.Logger
}

// Open connects to the SQLite database at path and ensures the products
// table exists. Safe to call against an existing database.
func Open(path string, log *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open product database %q: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create products table: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Snapshot returns the stored url→price map. Products persisted with a
// NULL price map to a nil value.
func (s *Store) Snapshot(ctx context.Context) (map[string]*float64, error) {
	var rows []struct {
		URL      string   `db:"url"`
		PriceARS *float64 `db:"price_ars"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT url, price_ars FROM products`); err != nil {
		return nil, fmt.Errorf("load old prices: %w", err)
	}
	snapshot := make(map[string]*float64, len(rows))
	for _, r := range rows {
		snapshot[r.URL] = r.PriceARS
	}
	return snapshot, nil
}

// UpsertAll inserts-or-replaces every product in one transaction; on any
// failure the whole batch is rolled back.
func (s *Store) UpsertAll(ctx context.Context, products []scraper.Product) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}

	const stmt = `
		INSERT OR REPLACE INTO products (url, name, price_ars, image_url, scraped_at)
		VALUES (:url, :name, :price_ars, :image_url, :scraped_at)`
	for _, p := range products {
		if _, err := tx.NamedExecContext(ctx, stmt, p); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert product %q: %w", p.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	s.log.Debug("products upserted", zap.Int("count", len(products)))
	return nil
}

// All returns every stored product, most recently scraped first.
func (s *Store) All(ctx context.Context) ([]scraper.Product, error) {
	var products []scraper.Product
	err := s.db.SelectContext(ctx, &products,
		`SELECT url, name, price_ars, image_url, scraped_at FROM products ORDER BY scraped_at DESC, url`)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	return products, nil
}

// Recent returns the n most recently scraped products.
func (s *Store) Recent(ctx context.Context, n int) ([]scraper.Product, error) {
	var products []scraper.Product
	err := s.db.SelectContext(ctx, &products,
		`SELECT url, name, price_ars, image_url, scraped_at FROM products ORDER BY scraped_at DESC, url LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("select recent products: %w", err)
	}
	return products, nil
}

// ByURL returns the product with the given URL, or nil when absent.
func (s *Store) ByURL(ctx context.Context, url string) (*scraper.Product, error) {
	var p scraper.Product
	err := s.db.GetContext(ctx, &p,
		`SELECT url, name, price_ars, image_url, scraped_at FROM products WHERE url = ?`, url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select product %q: %w", url, err)
	}
	return &p, nil
}

// Count returns the number of stored products.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM products`); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}
