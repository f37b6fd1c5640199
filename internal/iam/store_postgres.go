// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package iam

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexioerp/nexio/internal/platform/dberr"
)

// PostgresPrincipalStore reads principals from the iam schema.
type PostgresPrincipalStore struct {
	pool *pgxpool.Pool
}

// NewPostgresPrincipalStore creates a Postgres-backed principal store.
func NewPostgresPrincipalStore(pool *pgxpool.Pool) *PostgresPrincipalStore {
	return &PostgresPrincipalStore{pool: pool}
}

/*
FindByID looks up a principal by its stable identifier.

Parameters:
  - ctx: request context.
  - id: principal identifier.

Returns:
  - *Principal: the principal.
  - error: apperr.NotFound when the id is unknown.
*/
func (s *PostgresPrincipalStore) FindByID(ctx context.Context, id string) (*Principal, error) {
	const query = `
		SELECT id, display_name, email, capabilities, mfa_enabled
		FROM iam.principal
		WHERE id = $1`

	p, err := s.scanPrincipal(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("postgres_principal_store_find_by_id_failed: %w", err)
	}
	return p, nil
}

/*
FindByEmail looks up a principal by its contact email.

Parameters:
  - ctx: request context.
  - email: contact address, matched case-insensitively.

Returns:
  - *Principal: the principal.
  - error: apperr.NotFound when no principal uses the address.
*/
func (s *PostgresPrincipalStore) FindByEmail(ctx context.Context, email string) (*Principal, error) {
	const query = `
		SELECT id, display_name, email, capabilities, mfa_enabled
		FROM iam.principal
		WHERE lower(email) = lower($1)`

	p, err := s.scanPrincipal(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("postgres_principal_store_find_by_email_failed: %w", err)
	}
	return p, nil
}

/*
CredentialByEmail fetches the password hash for the login flow.

Parameters:
  - ctx: request context.
  - email: contact address, matched case-insensitively.

Returns:
  - id: principal identifier.
  - passwordHash: bcrypt hash of the stored password.
  - err: apperr.NotFound when no principal uses the address.
*/
func (s *PostgresPrincipalStore) CredentialByEmail(ctx context.Context, email string) (id, passwordHash string, err error) {
	const query = `
		SELECT id, password_hash
		FROM iam.principal
		WHERE lower(email) = lower($1)`

	if err := s.pool.QueryRow(ctx, query, email).Scan(&id, &passwordHash); err != nil {
		return "", "", fmt.Errorf("postgres_principal_store_credential_failed: %w", dberr.Wrap(err, "principal"))
	}
	return id, passwordHash, nil
}

/*
GroupsOf resolves the permission groups a principal belongs to,
following nested group edges.

Parameters:
  - ctx: request context.
  - principalID: principal identifier.

Returns:
  - []string: group names, direct and inherited. Empty for unknown ids.
  - error: non-nil on query failure.
*/
func (s *PostgresPrincipalStore) GroupsOf(ctx context.Context, principalID string) ([]string, error) {
	// 1. Seed with direct memberships, then walk parent edges.
	const query = `
		WITH RECURSIVE membership AS (
			SELECT group_name
			FROM iam.principal_group
			WHERE principal_id = $1
			UNION
			SELECT e.parent_group
			FROM iam.group_edge e
			JOIN membership m ON m.group_name = e.child_group
		)
		SELECT group_name FROM membership`

	rows, err := s.pool.Query(ctx, query, principalID)
	if err != nil {
		return nil, fmt.Errorf("postgres_principal_store_groups_failed: %w", err)
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("postgres_principal_store_groups_scan_failed: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *PostgresPrincipalStore) scanPrincipal(ctx context.Context, query string, arg any) (*Principal, error) {
	var (
		p    Principal
		caps []string
	)
	err := s.pool.QueryRow(ctx, query, arg).
		Scan(&p.ID, &p.DisplayName, &p.Email, &caps, &p.MFAEnabled)
	if err != nil {
		return nil, dberr.Wrap(err, "principal")
	}
	p.Capabilities = CapabilitiesFromStrings(caps)
	return &p, nil
}
