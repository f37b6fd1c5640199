// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package tenancy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexioerp/nexio/internal/platform/dberr"
)

// PostgresStore reads tenancy data from the tenancy schema.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed tenancy store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const tenantColumns = `id, code, name, state, plan_id, subscription_active, created_at`

/*
FindByID fetches one tenant.

Parameters:
  - ctx: request context.
  - id: tenant identifier.

Returns:
  - *Tenant: the tenant.
  - error: apperr.NotFound for unknown ids.
*/
func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenancy.tenant WHERE id = $1`
	t, err := s.scanTenant(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("postgres_tenancy_store_find_by_id_failed: %w", err)
	}
	return t, nil
}

/*
FindByCode fetches one tenant by short code.

Parameters:
  - ctx: request context.
  - code: URL-safe tenant code.

Returns:
  - *Tenant: the tenant.
  - error: apperr.NotFound for unknown codes.
*/
func (s *PostgresStore) FindByCode(ctx context.Context, code string) (*Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenancy.tenant WHERE code = $1`
	t, err := s.scanTenant(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("postgres_tenancy_store_find_by_code_failed: %w", err)
	}
	return t, nil
}

/*
TenantsOf lists the tenants a principal is affiliated with.

Parameters:
  - ctx: request context.
  - principalID: principal identifier.

Returns:
  - []string: tenant ids in stable order. Empty for no affiliations.
  - error: non-nil on query failure.
*/
func (s *PostgresStore) TenantsOf(ctx context.Context, principalID string) ([]string, error) {
	const query = `
		SELECT tenant_id
		FROM tenancy.affiliation
		WHERE principal_id = $1
		ORDER BY tenant_id`

	rows, err := s.pool.Query(ctx, query, principalID)
	if err != nil {
		return nil, fmt.Errorf("postgres_tenancy_store_affiliations_failed: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres_tenancy_store_affiliations_scan_failed: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

/*
PlanOf fetches the quota plan of a tenant.

Parameters:
  - ctx: request context.
  - tenantID: tenant identifier.

Returns:
  - *Plan: the plan with its limits decoded.
  - error: apperr.NotFound when the tenant or plan is missing.
*/
func (s *PostgresStore) PlanOf(ctx context.Context, tenantID string) (*Plan, error) {
	const query = `
		SELECT p.id, p.name, p.limits
		FROM tenancy.plan p
		JOIN tenancy.tenant t ON t.plan_id = p.id
		WHERE t.id = $1`

	var (
		plan      Plan
		rawLimits []byte
	)
	err := s.pool.QueryRow(ctx, query, tenantID).Scan(&plan.ID, &plan.Name, &rawLimits)
	if err != nil {
		return nil, fmt.Errorf("postgres_tenancy_store_plan_failed: %w", dberr.Wrap(err, "plan"))
	}
	if err := json.Unmarshal(rawLimits, &plan.Limits); err != nil {
		return nil, fmt.Errorf("postgres_tenancy_store_plan_decode_failed: %w", err)
	}
	return &plan, nil
}

/*
Usage reads the current consumption counters of a tenant.

Parameters:
  - ctx: request context.
  - tenantID: tenant identifier.
  - kinds: usage kinds to read; unknown kinds report zero.

Returns:
  - map[string]int64: counter per requested kind.
  - error: non-nil on query failure.
*/
func (s *PostgresStore) Usage(ctx context.Context, tenantID string, kinds []string) (map[string]int64, error) {
	const query = `
		SELECT kind, current_value
		FROM tenancy.usage_counter
		WHERE tenant_id = $1 AND kind = ANY($2)`

	rows, err := s.pool.Query(ctx, query, tenantID, kinds)
	if err != nil {
		return nil, fmt.Errorf("postgres_tenancy_store_usage_failed: %w", err)
	}
	defer rows.Close()

	usage := make(map[string]int64, len(kinds))
	for _, k := range kinds {
		usage[k] = 0
	}
	for rows.Next() {
		var (
			kind  string
			value int64
		)
		if err := rows.Scan(&kind, &value); err != nil {
			return nil, fmt.Errorf("postgres_tenancy_store_usage_scan_failed: %w", err)
		}
		usage[kind] = value
	}
	return usage, rows.Err()
}

func (s *PostgresStore) scanTenant(ctx context.Context, query string, arg any) (*Tenant, error) {
	var t Tenant
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&t.ID, &t.Code, &t.Name, &t.State, &t.PlanID, &t.SubscriptionActive, &t.CreatedAt)
	if err != nil {
		return nil, dberr.Wrap(err, "tenant")
	}
	return &t, nil
}
