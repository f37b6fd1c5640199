// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nexioerp/nexio/internal/audit"
	"github.com/nexioerp/nexio/internal/obs"
	"github.com/nexioerp/nexio/internal/platform/apperr"
	"github.com/nexioerp/nexio/internal/platform/clock"
	"github.com/nexioerp/nexio/internal/platform/constants"
)

// ErrCancelled aborts a handler at a cooperative checkpoint.
var ErrCancelled = errors.New("jobs: cancelled at checkpoint")

// Handler executes one kind of background work. It must be restartable
// at step granularity: a reclaimed job re-enters the handler from the
// top, and completed steps must tolerate being observed again.
type Handler func(ctx context.Context, job *Job, rt *Runtime) (json.RawMessage, error)

// kindSpec couples a handler with its submission policy.
type kindSpec struct {
	handler  Handler
	cooldown time.Duration
}

// Auditor receives job failure records. The audit sink implements it.
type Auditor interface {
	Record(e audit.Event)
}

// Runner owns the background worker pool. It holds its own database
// scope: nothing here ever runs inside the submitting request's
// transaction, which has committed long before a worker picks up.
type Runner struct {
	store     Store
	cooldowns Cooldown
	sink      Auditor
	clk       clock.Clock
	log       *slog.Logger
	workers   int

	mu    sync.RWMutex
	kinds map[string]kindSpec
}

// NewRunner wires the job runner. workers sizes the pool; it is
// independent of the request-serving pool.
func NewRunner(store Store, cooldowns Cooldown, sink Auditor, workers int, clk clock.Clock, log *slog.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		store:     store,
		cooldowns: cooldowns,
		sink:      sink,
		clk:       clk,
		log:       log,
		workers:   workers,
		kinds:     make(map[string]kindSpec),
	}
}

// Register binds a handler to a job kind. A zero cooldown disables the
// per-tenant submission throttle for that kind.
func (r *Runner) Register(kind string, cooldown time.Duration, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[kind] = kindSpec{handler: h, cooldown: cooldown}
}

func (r *Runner) spec(kind string) (kindSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.kinds[kind]
	return s, ok
}

/*
Submit persists a new pending job and returns immediately. The actual
work starts later, on a worker with its own transactional scope.

Parameters:
  - ctx: request context of the submitter.
  - kind: a registered job kind.
  - payload: opaque handler input.
  - tenantID, principalID: the owner.

Returns:
  - *Job: the pending job, including its external id.
  - error: VALIDATION_ERROR for unknown kinds, RATE_LIMIT_EXCEEDED
    inside the kind's cooldown, TOO_MANY_CONCURRENT_JOBS at the
    per-tenant cap.
*/
func (r *Runner) Submit(ctx context.Context, kind string, payload json.RawMessage, tenantID, principalID string) (*Job, error) {
	spec, ok := r.spec(kind)
	if !ok {
		return nil, apperr.ValidationError(fmt.Sprintf("unknown job kind %q", kind))
	}

	if spec.cooldown > 0 {
		acquired, err := r.cooldowns.Acquire(ctx, kind, tenantID, spec.cooldown)
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, apperr.RateLimited(int(spec.cooldown.Seconds()))
		}
	}

	now := r.clk.Now()
	job := &Job{
		JobID:       NewJobID(now),
		TenantID:    tenantID,
		PrincipalID: principalID,
		Kind:        kind,
		State:       StatePending,
		Payload:     payload,
		CreatedAt:   now,
	}

	// The store checks the per-tenant cap and persists in one atomic
	// step, so concurrent submits cannot both squeeze past it.
	if _, err := r.store.Insert(ctx, job, constants.JobMaxConcurrentPerTenant); err != nil {
		return nil, err
	}

	obs.JobTransitions.WithLabelValues(kind, string(StatePending)).Inc()
	r.log.Info("job submitted",
		"job_id", job.JobID, "kind", kind, "tenant_id", tenantID)
	return job, nil
}

// Status returns the poller-facing view of a job.
func (r *Runner) Status(ctx context.Context, jobID string) (*View, error) {
	j, err := r.store.FindByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return ViewOf(j), nil
}

// StatusFor is Status scoped to one tenant. Jobs owned by other
// tenants read as unknown, never as forbidden, so job ids cannot be
// probed across tenants.
func (r *Runner) StatusFor(ctx context.Context, jobID, tenantID string) (*View, error) {
	j, err := r.store.FindByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.TenantID != tenantID {
		return nil, apperr.NotFound("job")
	}
	return ViewOf(j), nil
}

// CancelFor is Cancel scoped to one tenant, with the same unknown-not-
// forbidden posture as StatusFor.
func (r *Runner) CancelFor(ctx context.Context, jobID, tenantID string) (*View, error) {
	j, err := r.store.FindByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.TenantID != tenantID {
		return nil, apperr.NotFound("job")
	}
	return r.Cancel(ctx, jobID)
}

// Cancel requests cooperative cancellation. Pending jobs cancel
// immediately; running jobs stop at their next checkpoint.
func (r *Runner) Cancel(ctx context.Context, jobID string) (*View, error) {
	state, err := r.store.RequestCancel(ctx, jobID, r.clk.Now())
	if err != nil {
		return nil, err
	}
	j, err := r.store.FindByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if state == StateCancelled {
		obs.JobTransitions.WithLabelValues(j.Kind, string(StateCancelled)).Inc()
	}
	return ViewOf(j), nil
}

// Run starts the worker pool and the lease-reclaim loop, blocking
// until ctx is cancelled and all workers have drained.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r.workLoop(ctx, worker)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.reclaimLoop(ctx)
	}()

	wg.Wait()
}

func (r *Runner) workLoop(ctx context.Context, worker int) {
	for {
		job, err := r.store.Claim(ctx, r.clk.Now(), r.clk.Now().Add(constants.JobLeaseDuration))
		switch {
		case err == nil:
			r.execute(ctx, job, worker)
			continue
		case ctx.Err() != nil:
			return
		default:
			if ae := apperr.As(err); ae == nil || ae.Code != "NOT_FOUND" {
				r.log.Error("job claim failed", "worker", worker, "error", err)
			}
		}

		select {
		case <-time.After(constants.JobPollInterval):
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(constants.JobLeaseDuration / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := r.store.ReclaimExpired(ctx, r.clk.Now())
			if err != nil {
				r.log.Error("job lease reclaim failed", "error", err)
				continue
			}
			if n > 0 {
				r.log.Warn("reclaimed jobs with expired leases", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// execute runs one claimed job to a terminal state. No handler error
// escapes: failures persist on the record and emit an audit entry.
func (r *Runner) execute(ctx context.Context, job *Job, worker int) {
	obs.JobTransitions.WithLabelValues(job.Kind, string(StateRunning)).Inc()
	log := r.log.With("job_id", job.JobID, "kind", job.Kind, "worker", worker)
	log.Info("job started", "tenant_id", job.TenantID)

	spec, ok := r.spec(job.Kind)
	if !ok {
		r.finishFailed(ctx, job, fmt.Errorf("no handler registered for kind %q", job.Kind))
		return
	}

	renewCtx, stopRenew := context.WithCancel(ctx)
	defer stopRenew()
	go r.renewLoop(renewCtx, job.JobID)

	rt := &Runtime{runner: r, job: job}
	result, err := func() (out json.RawMessage, err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("handler panicked: %v", p)
			}
		}()
		return spec.handler(ctx, job, rt)
	}()
	stopRenew()

	// Terminal writes must land even when the runner itself is
	// shutting down, so they detach from the worker's cancellation.
	finishCtx := context.WithoutCancel(ctx)
	now := r.clk.Now()
	switch {
	case errors.Is(err, ErrCancelled):
		if serr := r.store.MarkCancelled(finishCtx, job.JobID, now); serr != nil {
			log.Error("job cancel persist failed", "error", serr)
		}
		obs.JobTransitions.WithLabelValues(job.Kind, string(StateCancelled)).Inc()
		log.Info("job cancelled")
	case err != nil:
		r.finishFailed(finishCtx, job, err)
	default:
		if serr := r.store.Complete(finishCtx, job.JobID, result, now); serr != nil {
			log.Error("job completion persist failed", "error", serr)
		}
		obs.JobTransitions.WithLabelValues(job.Kind, string(StateCompleted)).Inc()
		log.Info("job completed")
	}
}

func (r *Runner) renewLoop(ctx context.Context, jobID string) {
	ticker := time.NewTicker(constants.JobLeaseRenewInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			until := r.clk.Now().Add(constants.JobLeaseDuration)
			if err := r.store.RenewLease(ctx, jobID, until); err != nil {
				r.log.Error("job lease renewal failed", "job_id", jobID, "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// finishFailed persists a redacted failure and emits the audit record.
// The full error goes to the log only.
func (r *Runner) finishFailed(ctx context.Context, job *Job, cause error) {
	r.log.Error("job failed",
		"job_id", job.JobID, "kind", job.Kind, "tenant_id", job.TenantID, "error", cause)

	message := redactError(cause)
	if err := r.store.Fail(ctx, job.JobID, message, r.clk.Now()); err != nil {
		r.log.Error("job failure persist failed", "job_id", job.JobID, "error", err)
	}
	obs.JobTransitions.WithLabelValues(job.Kind, string(StateFailed)).Inc()

	r.sink.Record(audit.Event{
		TenantID:    job.TenantID,
		PrincipalID: job.PrincipalID,
		Category:    "jobs",
		Severity:    audit.SeverityWarning,
		Action:      "jobs." + job.Kind,
		Resource:    job.JobID,
		Outcome:     audit.OutcomeDenied,
		ErrorCode:   "SERVER_ERROR",
		Metadata:    map[string]any{"state": string(StateFailed)},
	})
}

// redactError keeps typed application messages and hides everything
// else behind a generic line so infrastructure details never reach
// pollers.
func redactError(err error) string {
	if ae := apperr.As(err); ae != nil {
		return ae.Message
	}
	return "The job failed due to an internal error"
}

// Runtime is the handler's interface back into the runner.
type Runtime struct {
	runner *Runner
	job    *Job
}

// Progress writes advancement in its own short transaction so pollers
// observe it without touching the handler's working transaction.
func (rt *Runtime) Progress(ctx context.Context, percent int, step string) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return rt.runner.store.WriteProgress(ctx, rt.job.JobID, percent, step)
}

// Checkpoint is the cooperative suspension point. Handlers call it at
// step boundaries and between transactional windows; it surfaces both
// cancel requests and runner shutdown as ErrCancelled.
func (rt *Runtime) Checkpoint(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	flagged, err := rt.runner.store.CancelRequested(ctx, rt.job.JobID)
	if err != nil {
		return err
	}
	if flagged {
		return ErrCancelled
	}
	return nil
}
