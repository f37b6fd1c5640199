// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexioerp/nexio/internal/platform/dberr"
)

// PostgresStore persists sessions in iam.session.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

/*
Insert persists a freshly created session.

Parameters:
  - ctx: request context.
  - s: session row with Hash already computed.

Returns:
  - error: non-nil on write failure.
*/
func (s *PostgresStore) Insert(ctx context.Context, sess *Session) error {
	const query = `
		INSERT INTO iam.session (hash, principal_id, issued_at, expires_at, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		sess.Hash, sess.PrincipalID, sess.IssuedAt, sess.ExpiresAt, sess.IP, sess.UserAgent)
	if err != nil {
		return fmt.Errorf("postgres_session_store_insert_failed: %w", dberr.Wrap(err, "session"))
	}
	return nil
}

/*
FindByHash fetches one session row by hashed id.

Parameters:
  - ctx: request context.
  - hash: SHA-256 digest of the opaque id.

Returns:
  - *Session: the row, including revoked sessions.
  - error: apperr.NotFound when the hash was never issued.
*/
func (s *PostgresStore) FindByHash(ctx context.Context, hash string) (*Session, error) {
	const query = `
		SELECT hash, principal_id, issued_at, expires_at, revoked_at, ip, user_agent
		FROM iam.session
		WHERE hash = $1`

	var sess Session
	err := s.pool.QueryRow(ctx, query, hash).Scan(
		&sess.Hash, &sess.PrincipalID, &sess.IssuedAt, &sess.ExpiresAt,
		&sess.RevokedAt, &sess.IP, &sess.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("postgres_session_store_find_failed: %w", dberr.Wrap(err, "session"))
	}
	return &sess, nil
}

/*
MarkRevoked stamps revoked_at on a single session.

Parameters:
  - ctx: request context.
  - hash: SHA-256 digest of the opaque id.
  - at: revocation timestamp.

Returns:
  - error: non-nil on write failure. Unknown hashes are not an error.
*/
func (s *PostgresStore) MarkRevoked(ctx context.Context, hash string, at time.Time) error {
	const query = `
		UPDATE iam.session
		SET revoked_at = $2
		WHERE hash = $1 AND revoked_at IS NULL`

	if _, err := s.pool.Exec(ctx, query, hash, at); err != nil {
		return fmt.Errorf("postgres_session_store_revoke_failed: %w", err)
	}
	return nil
}

/*
MarkAllRevoked stamps revoked_at on all live sessions of a principal.

Parameters:
  - ctx: request context.
  - principalID: owner of the sessions.
  - at: revocation timestamp.

Returns:
  - []string: hashes of the newly revoked sessions, for Redis fan-out.
  - error: non-nil on write failure.
*/
func (s *PostgresStore) MarkAllRevoked(ctx context.Context, principalID string, at time.Time) ([]string, error) {
	const query = `
		UPDATE iam.session
		SET revoked_at = $2
		WHERE principal_id = $1 AND revoked_at IS NULL AND expires_at > $2
		RETURNING hash`

	rows, err := s.pool.Query(ctx, query, principalID, at)
	if err != nil {
		return nil, fmt.Errorf("postgres_session_store_revoke_all_failed: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("postgres_session_store_revoke_all_scan_failed: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

/*
ListActive returns the live sessions of a principal, newest first.

Parameters:
  - ctx: request context.
  - principalID: owner of the sessions.
  - now: expiry reference time.

Returns:
  - []Session: live sessions, may be empty.
  - error: non-nil on query failure.
*/
func (s *PostgresStore) ListActive(ctx context.Context, principalID string, now time.Time) ([]Session, error) {
	const query = `
		SELECT hash, principal_id, issued_at, expires_at, revoked_at, ip, user_agent
		FROM iam.session
		WHERE principal_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY issued_at DESC`

	rows, err := s.pool.Query(ctx, query, principalID, now)
	if err != nil {
		return nil, fmt.Errorf("postgres_session_store_list_failed: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(
			&sess.Hash, &sess.PrincipalID, &sess.IssuedAt, &sess.ExpiresAt,
			&sess.RevokedAt, &sess.IP, &sess.UserAgent); err != nil {
			return nil, fmt.Errorf("postgres_session_store_list_scan_failed: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}
