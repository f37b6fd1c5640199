// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexioerp/nexio/internal/platform/apperr"
	"github.com/nexioerp/nexio/internal/platform/dberr"
)

// PostgresStore persists jobs in the jobs schema.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed job store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const jobColumns = `id, job_id, tenant_id, principal_id, kind, state, progress, step,
	started_at, ended_at, payload_json, result_json, error, cancel_requested,
	lease_expires_at, created_at`

/*
Insert persists a freshly submitted job, enforcing the per-tenant cap
on pending plus running jobs in the same transaction.

An advisory transaction lock on the tenant serialises concurrent
submits, so two requests arriving at cap-1 cannot both pass the count.

Parameters:
  - ctx: request context.
  - j: the job, State must be pending.
  - maxActive: the per-tenant cap.

Returns:
  - *Job: the job with its assigned row id.
  - error: apperr.TooManyConcurrentJobs at the cap; wrapped database
    errors otherwise.
*/
func (s *PostgresStore) Insert(ctx context.Context, j *Job, maxActive int) (*Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres_job_store_begin_failed: %w", dberr.Wrap(err, "insert job"))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('jobs:' || $1::text))`, j.TenantID); err != nil {
		return nil, fmt.Errorf("postgres_job_store_lock_failed: %w", dberr.Wrap(err, "insert job"))
	}

	query := `
		INSERT INTO jobs.job
			(job_id, tenant_id, principal_id, kind, state, progress, step,
			 payload_json, cancel_requested, created_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9
		WHERE (SELECT COUNT(*) FROM jobs.job
		       WHERE tenant_id = $2 AND state IN ('pending', 'running')) < $10
		RETURNING id`
	err = tx.QueryRow(ctx, query,
		j.JobID, j.TenantID, j.PrincipalID, j.Kind, j.State, j.Progress, j.Step,
		j.Payload, j.CreatedAt, maxActive,
	).Scan(&j.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.TooManyConcurrentJobs()
	}
	if err != nil {
		return nil, fmt.Errorf("postgres_job_store_insert_failed: %w", dberr.Wrap(err, "insert job"))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres_job_store_commit_failed: %w", dberr.Wrap(err, "insert job"))
	}
	return j, nil
}

/*
FindByJobID fetches one job by its external id.

Parameters:
  - ctx: request context.
  - jobID: the externally visible identifier.

Returns:
  - *Job: the job.
  - error: apperr.NotFound for unknown ids.
*/
func (s *PostgresStore) FindByJobID(ctx context.Context, jobID string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs.job WHERE job_id = $1`
	j, err := s.scanJob(s.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		return nil, fmt.Errorf("postgres_job_store_find_failed: %w", dberr.Wrap(err, "find job"))
	}
	return j, nil
}

/*
Claim picks and locks the next pending job.

Scheduling ranks each tenant's pending jobs by age, then picks the
lowest rank across tenants: a tenant with a deep backlog cannot starve
a tenant with a single waiting job. SKIP LOCKED keeps concurrent
workers from fighting over the same row, and the locking subquery
re-checks state because the ranked CTE is a pre-lock snapshot: a row
another worker flipped to running between snapshot and lock must not
be claimed twice.

Parameters:
  - ctx: worker context.
  - now: claim instant, recorded as started_at on first claim.
  - leaseUntil: liveness lease expiry.

Returns:
  - *Job: the claimed job, now running.
  - error: apperr.NotFound when nothing is pending.
*/
func (s *PostgresStore) Claim(ctx context.Context, now, leaseUntil time.Time) (*Job, error) {
	query := `
		WITH ranked AS (
			SELECT id,
			       ROW_NUMBER() OVER (PARTITION BY tenant_id ORDER BY created_at, id) AS pos
			FROM jobs.job
			WHERE state = 'pending'
		),
		picked AS (
			SELECT j.id
			FROM jobs.job j
			JOIN ranked r ON r.id = j.id
			WHERE j.state = 'pending'
			ORDER BY r.pos, j.created_at, j.id
			FOR UPDATE OF j SKIP LOCKED
			LIMIT 1
		)
		UPDATE jobs.job
		SET state = 'running',
		    started_at = COALESCE(started_at, $1),
		    lease_expires_at = $2
		WHERE id IN (SELECT id FROM picked)
		RETURNING ` + jobColumns
	j, err := s.scanJob(s.pool.QueryRow(ctx, query, now, leaseUntil))
	if err != nil {
		return nil, fmt.Errorf("postgres_job_store_claim_failed: %w", dberr.Wrap(err, "claim job"))
	}
	return j, nil
}

// WriteProgress records advancement in its own short transaction. The
// GREATEST keeps progress monotone even under a reclaimed-and-restarted
// worker racing its predecessor's last write.
func (s *PostgresStore) WriteProgress(ctx context.Context, jobID string, progress int, step string) error {
	query := `
		UPDATE jobs.job
		SET progress = GREATEST(progress, $2), step = $3
		WHERE job_id = $1 AND state = 'running'`
	if _, err := s.pool.Exec(ctx, query, jobID, progress, step); err != nil {
		return fmt.Errorf("postgres_job_store_progress_failed: %w", dberr.Wrap(err, "write progress"))
	}
	return nil
}

// RenewLease extends the liveness lease of a running job.
func (s *PostgresStore) RenewLease(ctx context.Context, jobID string, until time.Time) error {
	query := `
		UPDATE jobs.job SET lease_expires_at = $2
		WHERE job_id = $1 AND state = 'running'`
	if _, err := s.pool.Exec(ctx, query, jobID, until); err != nil {
		return fmt.Errorf("postgres_job_store_renew_lease_failed: %w", dberr.Wrap(err, "renew lease"))
	}
	return nil
}

// Complete finishes a job successfully.
func (s *PostgresStore) Complete(ctx context.Context, jobID string, result json.RawMessage, endedAt time.Time) error {
	query := `
		UPDATE jobs.job
		SET state = 'completed', progress = 100, result_json = $2,
		    ended_at = $3, lease_expires_at = NULL
		WHERE job_id = $1 AND state = 'running'`
	if _, err := s.pool.Exec(ctx, query, jobID, result, endedAt); err != nil {
		return fmt.Errorf("postgres_job_store_complete_failed: %w", dberr.Wrap(err, "complete job"))
	}
	return nil
}

// Fail finishes a job with a redacted error message.
func (s *PostgresStore) Fail(ctx context.Context, jobID string, message string, endedAt time.Time) error {
	query := `
		UPDATE jobs.job
		SET state = 'failed', error = $2, ended_at = $3, lease_expires_at = NULL
		WHERE job_id = $1 AND state = 'running'`
	if _, err := s.pool.Exec(ctx, query, jobID, message, endedAt); err != nil {
		return fmt.Errorf("postgres_job_store_fail_failed: %w", dberr.Wrap(err, "fail job"))
	}
	return nil
}

// MarkCancelled transitions a running job to cancelled.
func (s *PostgresStore) MarkCancelled(ctx context.Context, jobID string, endedAt time.Time) error {
	query := `
		UPDATE jobs.job
		SET state = 'cancelled', ended_at = $2, lease_expires_at = NULL
		WHERE job_id = $1 AND state = 'running'`
	if _, err := s.pool.Exec(ctx, query, jobID, endedAt); err != nil {
		return fmt.Errorf("postgres_job_store_mark_cancelled_failed: %w", dberr.Wrap(err, "cancel job"))
	}
	return nil
}

/*
RequestCancel flips the cooperative cancel flag.

Parameters:
  - ctx: request context.
  - jobID: the externally visible identifier.
  - now: flag instant, recorded as ended_at for pending jobs.

Returns:
  - State: the resulting state.
  - error: apperr.NotFound for unknown ids.
*/
func (s *PostgresStore) RequestCancel(ctx context.Context, jobID string, now time.Time) (State, error) {
	query := `
		UPDATE jobs.job
		SET cancel_requested = TRUE,
		    state = CASE WHEN state = 'pending' THEN 'cancelled' ELSE state END,
		    ended_at = CASE WHEN state = 'pending' THEN $2 ELSE ended_at END
		WHERE job_id = $1 AND state IN ('pending', 'running')
		RETURNING state`
	var state State
	err := s.pool.QueryRow(ctx, query, jobID, now).Scan(&state)
	if err == nil {
		return state, nil
	}

	// Terminal jobs match no row; report their current state instead.
	j, ferr := s.FindByJobID(ctx, jobID)
	if ferr != nil {
		return "", ferr
	}
	return j.State, nil
}

// CancelRequested reads the cooperative cancel flag.
func (s *PostgresStore) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	query := `SELECT cancel_requested FROM jobs.job WHERE job_id = $1`
	var flagged bool
	if err := s.pool.QueryRow(ctx, query, jobID).Scan(&flagged); err != nil {
		return false, fmt.Errorf("postgres_job_store_cancel_flag_failed: %w", dberr.Wrap(err, "read cancel flag"))
	}
	return flagged, nil
}

// ReclaimExpired moves running jobs with stale leases back to pending.
func (s *PostgresStore) ReclaimExpired(ctx context.Context, now time.Time) (int, error) {
	query := `
		UPDATE jobs.job
		SET state = 'pending', lease_expires_at = NULL
		WHERE state = 'running' AND lease_expires_at < $1`
	tag, err := s.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("postgres_job_store_reclaim_failed: %w", dberr.Wrap(err, "reclaim jobs"))
	}
	return int(tag.RowsAffected()), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanJob(row rowScanner) (*Job, error) {
	var j Job
	err := row.Scan(
		&j.ID, &j.JobID, &j.TenantID, &j.PrincipalID, &j.Kind, &j.State,
		&j.Progress, &j.Step, &j.StartedAt, &j.EndedAt, &j.Payload,
		&j.Result, &j.Error, &j.CancelRequested, &j.LeaseExpiresAt, &j.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}
