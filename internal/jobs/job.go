// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

/*
Package jobs runs long-lived privileged work outside the request path.

Submitting returns a job id immediately; a separate worker pool picks
pending jobs in per-tenant FIFO order, fairly across tenants, and owns
its own transactional scope. The submitting request's transaction has
long since committed when work starts.

# Liveness

A running worker holds a lease on its job and renews it periodically.
If the process dies, the lease expires and a reclaim pass moves the job
back to pending for another worker. Handlers must therefore be
restartable at step granularity.

# Cancellation

Cancellation is cooperative. cancel() flips a flag; workers observe it
at checkpoints between transactional windows and stop there.
*/
package jobs

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// State is the lifecycle position of a job. Transitions are monotone:
// pending -> running -> (completed | failed | cancelled).
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// rank orders states for monotonicity checks. Terminal states share a
// rank: once terminal, always terminal, but never terminal-to-terminal.
func (s State) rank() int {
	switch s {
	case StatePending:
		return 0
	case StateRunning:
		return 1
	default:
		return 2
	}
}

// Registered job kinds.
const (
	KindSeed          = "seed"
	KindBackup        = "backup"
	KindBulkReminders = "bulk_reminders"
	KindProvisioning  = "tenant_provisioning"
)

// Job is the persistent record of one unit of background work. Only the
// owning worker mutates it, except for the cancel flag.
type Job struct {
	ID          int64
	JobID       string // externally visible, time-ordered
	TenantID    string
	PrincipalID string
	Kind        string
	State       State

	// Progress is a percentage in [0,100], non-decreasing while running.
	Progress int
	Step     string

	StartedAt *time.Time
	EndedAt   *time.Time

	// Payload is opaque input, interpreted only by the kind's handler.
	Payload json.RawMessage
	Result  json.RawMessage

	// Error is the redacted failure message shown to pollers.
	Error string

	CancelRequested bool
	LeaseExpiresAt  *time.Time
	CreatedAt       time.Time
}

// View is the poller-facing projection of a job.
type View struct {
	JobID     string          `json:"job_id"`
	Kind      string          `json:"kind"`
	State     State           `json:"state"`
	Progress  int             `json:"progress"`
	Step      string          `json:"step,omitempty"`
	StartedAt *time.Time      `json:"started_at,omitempty"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ViewOf projects a job for status polling.
func ViewOf(j *Job) *View {
	return &View{
		JobID:     j.JobID,
		Kind:      j.Kind,
		State:     j.State,
		Progress:  j.Progress,
		Step:      j.Step,
		StartedAt: j.StartedAt,
		EndedAt:   j.EndedAt,
		Result:    j.Result,
		Error:     j.Error,
	}
}

// NewJobID generates an externally visible job identifier. ULIDs sort
// by creation time, which keeps status listings naturally ordered.
func NewJobID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}
