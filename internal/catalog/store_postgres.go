// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexioerp/nexio/internal/platform/dberr"
)

// PostgresStore persists products in the catalog schema.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed catalog store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

/*
Insert persists a product and bumps the tenant's usage counter.

Both writes share one transaction: quota accounting must never drift
from the rows it counts.

Parameters:
  - ctx: request context.
  - p: the product, ID already assigned.

Returns:
  - error: wrapped database errors; duplicate slugs surface as
    VALIDATION_ERROR.
*/
func (s *PostgresStore) Insert(ctx context.Context, p *Product) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres_catalog_store_begin_failed: %w", dberr.Wrap(err, "insert product"))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO catalog.product (id, tenant_id, name, slug, price_cent, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.TenantID, p.Name, p.Slug, p.PriceCent, p.CreatedBy, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_catalog_store_insert_failed: %w", dberr.Wrap(err, "insert product"))
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO tenancy.usage_counter (tenant_id, kind, current_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, kind) DO UPDATE SET current_value = tenancy.usage_counter.current_value + 1`,
		p.TenantID, UsageKindProducts,
	)
	if err != nil {
		return fmt.Errorf("postgres_catalog_store_usage_failed: %w", dberr.Wrap(err, "bump usage"))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres_catalog_store_commit_failed: %w", dberr.Wrap(err, "insert product"))
	}
	return nil
}

// FindByID returns one product or apperr.NotFound.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Product, error) {
	var p Product
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, slug, price_cent, created_by, created_at
		FROM catalog.product WHERE id = $1`, id,
	).Scan(&p.ID, &p.TenantID, &p.Name, &p.Slug, &p.PriceCent, &p.CreatedBy, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres_catalog_store_find_failed: %w", dberr.Wrap(err, "find product"))
	}
	return &p, nil
}

// List returns a tenant's products, newest first.
func (s *PostgresStore) List(ctx context.Context, tenantID string) ([]Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, name, slug, price_cent, created_by, created_at
		FROM catalog.product WHERE tenant_id = $1
		ORDER BY created_at DESC, id DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("postgres_catalog_store_list_failed: %w", dberr.Wrap(err, "list products"))
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Slug, &p.PriceCent, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres_catalog_store_scan_failed: %w", dberr.Wrap(err, "list products"))
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_catalog_store_rows_failed: %w", dberr.Wrap(err, "list products"))
	}
	return out, nil
}
