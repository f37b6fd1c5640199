// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexioerp/nexio/pkg/pagination"
)

// PostgresStore persists events in audit.event.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed audit store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

/*
InsertBatch writes a batch of events in a single round trip.

Parameters:
  - ctx: write context, independent of any request.
  - events: events to persist, in arrival order.

Returns:
  - error: non-nil on write failure; the batch is all-or-nothing.
*/
func (s *PostgresStore) InsertBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(events))
	for _, e := range events {
		var metadata []byte
		if len(e.Metadata) > 0 {
			raw, err := json.Marshal(e.Metadata)
			if err != nil {
				return fmt.Errorf("postgres_audit_store_metadata_encode_failed: %w", err)
			}
			metadata = raw
		}
		rows = append(rows, []any{
			e.RequestID, e.TenantID, e.PrincipalID, e.Category, string(e.Severity),
			e.Action, e.Resource, string(e.Outcome), e.ErrorCode, e.ClientIP,
			e.Method, e.Path, metadata, e.CreatedAt,
		})
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"audit", "event"},
		[]string{
			"request_id", "tenant_id", "principal_id", "category", "severity",
			"action", "resource", "outcome", "error_code", "client_ip",
			"method", "path", "metadata", "created_at",
		},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("postgres_audit_store_insert_batch_failed: %w", err)
	}
	return nil
}

const eventColumns = `id, request_id, tenant_id, principal_id, category, severity,
	action, resource, outcome, error_code, client_ip, method, path, metadata, created_at`

/*
Search returns one page of matching events, newest first.

Parameters:
  - ctx: request context.
  - f: filter; zero fields match everything.
  - p: page and limit; the caller caps the limit.

Returns:
  - []Event: one page of matches.
  - int64: total match count.
  - error: non-nil on query failure.
*/
func (s *PostgresStore) Search(ctx context.Context, f Filter, p pagination.Params) ([]Event, int64, error) {
	where, args := buildFilter(f)

	var total int64
	countQuery := `SELECT count(*) FROM audit.event` + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres_audit_store_count_failed: %w", err)
	}

	query := `SELECT ` + eventColumns + ` FROM audit.event` + where +
		` ORDER BY created_at DESC, id DESC` +
		` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, p.Limit, p.Offset())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres_audit_store_search_failed: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

/*
SearchAll streams every match of a filter, newest first.

Parameters:
  - ctx: request context.
  - f: filter; zero fields match everything.
  - yield: called once per event; a non-nil return stops the stream.

Returns:
  - error: non-nil on query failure or the first yield error.
*/
func (s *PostgresStore) SearchAll(ctx context.Context, f Filter, yield func(Event) error) error {
	where, args := buildFilter(f)
	query := `SELECT ` + eventColumns + ` FROM audit.event` + where +
		` ORDER BY created_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres_audit_store_search_all_failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return err
		}
		if err := yield(*e); err != nil {
			return err
		}
	}
	return rows.Err()
}

// buildFilter renders the WHERE clause and its ordered arguments.
func buildFilter(f Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.TenantID != "" {
		add("tenant_id = $%d", f.TenantID)
	}
	if f.PrincipalID != "" {
		add("principal_id = $%d", f.PrincipalID)
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if f.Severity != "" {
		add("severity = $%d", string(f.Severity))
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.Outcome != "" {
		add("outcome = $%d", string(f.Outcome))
	}
	if f.ErrorCode != "" {
		add("error_code = $%d", f.ErrorCode)
	}
	if f.Text != "" {
		args = append(args, "%"+f.Text+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			"(action ILIKE $%d OR path ILIKE $%d OR error_code ILIKE $%d)", n, n, n))
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at < $%d", f.To)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanEvents(rows pgx.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func scanEvent(rows pgx.Rows) (*Event, error) {
	var (
		e        Event
		metadata []byte
	)
	if err := rows.Scan(
		&e.ID, &e.RequestID, &e.TenantID, &e.PrincipalID, &e.Category, &e.Severity,
		&e.Action, &e.Resource, &e.Outcome, &e.ErrorCode, &e.ClientIP,
		&e.Method, &e.Path, &metadata, &e.CreatedAt); err != nil {
		return nil, fmt.Errorf("postgres_audit_store_scan_failed: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("postgres_audit_store_metadata_decode_failed: %w", err)
		}
	}
	return &e, nil
}
