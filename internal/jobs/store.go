// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package jobs

import (
	"context"
	"encoding/json"
	"time"
)

// Store persists jobs. The runner owns all writes; nothing on the
// request path touches a job record except through Submit and Cancel.
type Store interface {
	// Insert persists a freshly submitted job and assigns its row id.
	// The per-tenant cap on pending plus running jobs is enforced
	// inside the same atomic step; at the cap the job is not persisted
	// and apperr.TooManyConcurrentJobs is returned.
	Insert(ctx context.Context, j *Job, maxActive int) (*Job, error)

	// FindByJobID returns the job behind an external id or apperr.NotFound.
	FindByJobID(ctx context.Context, jobID string) (*Job, error)

	// Claim atomically picks the next pending job and transitions it to
	// running under a lease. Scheduling is per-tenant FIFO, fair across
	// tenants: every tenant's oldest job outranks any tenant's second.
	// Returns apperr.NotFound when nothing is pending.
	Claim(ctx context.Context, now, leaseUntil time.Time) (*Job, error)

	// WriteProgress records advancement in its own short transaction.
	// Progress never decreases; stale writes are absorbed silently.
	WriteProgress(ctx context.Context, jobID string, progress int, step string) error

	// RenewLease extends the liveness lease of a running job.
	RenewLease(ctx context.Context, jobID string, until time.Time) error

	// Complete finishes a job successfully.
	Complete(ctx context.Context, jobID string, result json.RawMessage, endedAt time.Time) error

	// Fail finishes a job with a redacted error message.
	Fail(ctx context.Context, jobID string, message string, endedAt time.Time) error

	// MarkCancelled transitions a running (or cancel-flagged) job to
	// cancelled. Used by workers at checkpoints.
	MarkCancelled(ctx context.Context, jobID string, endedAt time.Time) error

	// RequestCancel flips the cancel flag. Pending jobs transition to
	// cancelled immediately; running jobs stop at their next
	// checkpoint. Returns the resulting state; terminal jobs are left
	// untouched.
	RequestCancel(ctx context.Context, jobID string, now time.Time) (State, error)

	// CancelRequested reads the cooperative cancel flag.
	CancelRequested(ctx context.Context, jobID string) (bool, error)

	// ReclaimExpired moves running jobs with stale leases back to
	// pending and returns how many were reclaimed.
	ReclaimExpired(ctx context.Context, now time.Time) (int, error)
}
