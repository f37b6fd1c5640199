// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package waf

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexioerp/nexio/internal/platform/apperr"
	"github.com/nexioerp/nexio/internal/platform/dberr"
	"github.com/nexioerp/nexio/pkg/pagination"
)

// PostgresRuleStore persists rules in waf.rule.
type PostgresRuleStore struct {
	pool *pgxpool.Pool
}

// NewPostgresRuleStore creates a Postgres-backed rule store.
func NewPostgresRuleStore(pool *pgxpool.Pool) *PostgresRuleStore {
	return &PostgresRuleStore{pool: pool}
}

const ruleColumns = `id, name, pattern, target, action, priority, enabled,
	excluded_cidrs, excluded_path_prefixes, created_at, updated_at`

/*
ListEnabled returns the enabled rules in evaluation order.

Parameters:
  - ctx: request context.

Returns:
  - []Rule: enabled rules, priority descending then id ascending.
  - error: non-nil on query failure.
*/
func (s *PostgresRuleStore) ListEnabled(ctx context.Context) ([]Rule, error) {
	query := `SELECT ` + ruleColumns + `
		FROM waf.rule
		WHERE enabled
		ORDER BY priority DESC, id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres_waf_rule_store_list_enabled_failed: %w", err)
	}
	defer rows.Close()
	return scanRules(rows)
}

/*
ListAll returns every rule, paginated, in evaluation order.

Parameters:
  - ctx: request context.
  - p: page and limit.

Returns:
  - []Rule: one page of rules.
  - int64: total rule count across all pages.
  - error: non-nil on query failure.
*/
func (s *PostgresRuleStore) ListAll(ctx context.Context, p pagination.Params) ([]Rule, int64, error) {
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM waf.rule`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres_waf_rule_store_count_failed: %w", err)
	}

	query := `SELECT ` + ruleColumns + `
		FROM waf.rule
		ORDER BY priority DESC, id ASC
		LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, p.Limit, p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("postgres_waf_rule_store_list_failed: %w", err)
	}
	defer rows.Close()

	rules, err := scanRules(rows)
	if err != nil {
		return nil, 0, err
	}
	return rules, total, nil
}

/*
Create inserts a rule.

Parameters:
  - ctx: request context.
  - r: rule to insert; ID and timestamps are assigned by the store.

Returns:
  - *Rule: the stored rule with id and timestamps filled.
  - error: non-nil on write failure.
*/
func (s *PostgresRuleStore) Create(ctx context.Context, r *Rule) (*Rule, error) {
	const query = `
		INSERT INTO waf.rule
			(name, pattern, target, action, priority, enabled, excluded_cidrs, excluded_path_prefixes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	stored := *r
	err := s.pool.QueryRow(ctx, query,
		r.Name, r.Pattern, r.Target, r.Action, r.Priority, r.Enabled,
		r.ExcludedCIDRs, r.ExcludedPathPrefixes).
		Scan(&stored.ID, &stored.CreatedAt, &stored.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres_waf_rule_store_create_failed: %w", dberr.Wrap(err, "waf rule"))
	}
	return &stored, nil
}

/*
Update rewrites a rule.

Parameters:
  - ctx: request context.
  - r: rule with ID set and the new field values.

Returns:
  - *Rule: the stored rule with its refreshed update timestamp.
  - error: apperr.NotFound for unknown ids.
*/
func (s *PostgresRuleStore) Update(ctx context.Context, r *Rule) (*Rule, error) {
	const query = `
		UPDATE waf.rule
		SET name = $2, pattern = $3, target = $4, action = $5, priority = $6,
			enabled = $7, excluded_cidrs = $8, excluded_path_prefixes = $9,
			updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`

	stored := *r
	err := s.pool.QueryRow(ctx, query,
		r.ID, r.Name, r.Pattern, r.Target, r.Action, r.Priority,
		r.Enabled, r.ExcludedCIDRs, r.ExcludedPathPrefixes).
		Scan(&stored.CreatedAt, &stored.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres_waf_rule_store_update_failed: %w", dberr.Wrap(err, "waf rule"))
	}
	return &stored, nil
}

/*
Delete removes a rule.

Parameters:
  - ctx: request context.
  - id: rule identifier.

Returns:
  - error: apperr.NotFound for unknown ids.
*/
func (s *PostgresRuleStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM waf.rule WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres_waf_rule_store_delete_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("WAF rule")
	}
	return nil
}

/*
Disable switches a rule off and records the reason.

Parameters:
  - ctx: request context.
  - id: rule identifier.
  - reason: operator-visible explanation, e.g. a compile failure.

Returns:
  - error: non-nil on write failure.
*/
func (s *PostgresRuleStore) Disable(ctx context.Context, id int64, reason string) error {
	const query = `
		UPDATE waf.rule
		SET enabled = FALSE, disabled_reason = $2, updated_at = now()
		WHERE id = $1`

	if _, err := s.pool.Exec(ctx, query, id, reason); err != nil {
		return fmt.Errorf("postgres_waf_rule_store_disable_failed: %w", err)
	}
	return nil
}

func scanRules(rows pgx.Rows) ([]Rule, error) {
	var rules []Rule
	for rows.Next() {
		var r Rule
		if err := rows.Scan(
			&r.ID, &r.Name, &r.Pattern, &r.Target, &r.Action, &r.Priority, &r.Enabled,
			&r.ExcludedCIDRs, &r.ExcludedPathPrefixes, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres_waf_rule_store_scan_failed: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// PostgresHitStore persists matches in waf.hit.
type PostgresHitStore struct {
	pool *pgxpool.Pool
}

// NewPostgresHitStore creates a Postgres-backed hit store.
func NewPostgresHitStore(pool *pgxpool.Pool) *PostgresHitStore {
	return &PostgresHitStore{pool: pool}
}

func (s *PostgresHitStore) Insert(ctx context.Context, h *Hit) error {
	const query = `
		INSERT INTO waf.hit
			(rule_id, rule_name, action, request_id, client_ip, method, path, matched, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		h.RuleID, h.RuleName, h.Action, h.RequestID, h.ClientIP, h.Method, h.Path, h.Matched, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres_waf_hit_store_insert_failed: %w", err)
	}
	return nil
}
