// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nexioerp/nexio/internal/catalog"
	"github.com/nexioerp/nexio/internal/platform/apperr"
	"github.com/nexioerp/nexio/internal/platform/constants"
	"github.com/nexioerp/nexio/internal/tenancy"
)

// HandlerDeps carries the collaborators the built-in job kinds need.
type HandlerDeps struct {
	Catalog *catalog.Service
	Tenants *tenancy.CachedStore
	Log     *slog.Logger
}

// RegisterBuiltins binds the standard job kinds to a runner. The seed
// kind carries the per-tenant submission cooldown; the others rely on
// the concurrency cap alone.
func RegisterBuiltins(r *Runner, deps HandlerDeps) {
	r.Register(KindSeed, constants.SeedJobCooldown, seedHandler(deps))
	r.Register(KindBackup, 0, backupHandler(deps))
	r.Register(KindBulkReminders, 0, bulkRemindersHandler(deps))
	r.Register(KindProvisioning, 0, provisioningHandler(deps))
}

// seedPrefix marks seeded demo records so a restarted seed job can tell
// which of its products already landed.
const seedPrefix = "Demo Product"

type seedPayload struct {
	Products int `json:"products"`
}

// seedHandler populates a tenant with demo catalog data. Restart-safe:
// it counts the demo records already present and only creates the
// remainder, so a reclaimed job never duplicates work.
func seedHandler(deps HandlerDeps) Handler {
	return func(ctx context.Context, job *Job, rt *Runtime) (json.RawMessage, error) {
		var p seedPayload
		if len(job.Payload) > 0 {
			if err := json.Unmarshal(job.Payload, &p); err != nil {
				return nil, apperr.ValidationError("seed payload is not valid JSON")
			}
		}
		if p.Products <= 0 {
			p.Products = 5
		}
		if p.Products > 50 {
			p.Products = 50
		}

		if err := rt.Progress(ctx, 5, "planning"); err != nil {
			return nil, err
		}

		existing, err := deps.Catalog.List(ctx, job.TenantID)
		if err != nil {
			return nil, err
		}
		done := 0
		for _, product := range existing {
			if strings.HasPrefix(product.Name, seedPrefix) {
				done++
			}
		}

		created := 0
		for i := done; i < p.Products; i++ {
			if err := rt.Checkpoint(ctx); err != nil {
				return nil, err
			}
			_, err := deps.Catalog.Create(ctx, job.TenantID, job.PrincipalID, catalog.CreateInput{
				Name:      fmt.Sprintf("%s %02d", seedPrefix, i+1),
				PriceCent: int64(1000 + 250*i),
			})
			if err != nil {
				return nil, err
			}
			created++
			percent := 5 + (90*(i+1))/p.Products
			if err := rt.Progress(ctx, percent, "seeding"); err != nil {
				return nil, err
			}
		}

		if err := rt.Progress(ctx, 100, "finalizing"); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{
			"requested":        p.Products,
			"created":          created,
			"already_existing": done,
		})
	}
}

// backupHandler walks each data domain in its own short read, so the
// lease keeps renewing between domains instead of behind one long scan.
func backupHandler(deps HandlerDeps) Handler {
	return func(ctx context.Context, job *Job, rt *Runtime) (json.RawMessage, error) {
		objects := 0

		if err := rt.Progress(ctx, 10, "snapshot_catalog"); err != nil {
			return nil, err
		}
		products, err := deps.Catalog.List(ctx, job.TenantID)
		if err != nil {
			return nil, err
		}
		objects += len(products)

		if err := rt.Checkpoint(ctx); err != nil {
			return nil, err
		}

		if err := rt.Progress(ctx, 60, "snapshot_tenant"); err != nil {
			return nil, err
		}
		if _, err := deps.Tenants.FindByID(ctx, job.TenantID); err != nil {
			return nil, err
		}
		objects++

		if err := rt.Progress(ctx, 100, "archived"); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"objects": objects})
	}
}

type bulkRemindersPayload struct {
	Emails []string `json:"emails"`
}

// bulkRemindersHandler fans notifications out one recipient at a time,
// checkpointing between sends so cancellation lands mid-batch.
func bulkRemindersHandler(deps HandlerDeps) Handler {
	return func(ctx context.Context, job *Job, rt *Runtime) (json.RawMessage, error) {
		var p bulkRemindersPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return nil, apperr.ValidationError("reminders payload is not valid JSON")
		}
		if len(p.Emails) == 0 {
			return nil, apperr.ValidationError("reminders payload needs at least one recipient")
		}

		sent := 0
		for i, email := range p.Emails {
			if err := rt.Checkpoint(ctx); err != nil {
				return nil, err
			}
			// Delivery is delegated to the outbound mail relay; here we
			// record intent so the relay picks it up from the log stream.
			deps.Log.Info("reminder queued",
				"job_id", job.JobID, "tenant_id", job.TenantID, "recipient", email)
			sent++
			if err := rt.Progress(ctx, (100*(i+1))/len(p.Emails), "sending"); err != nil {
				return nil, err
			}
		}
		return json.Marshal(map[string]any{"sent": sent})
	}
}

// provisioningHandler finishes tenant setup after the control plane has
// created the record: it verifies the tenant exists, seeds nothing by
// itself, and drops any cached view so admission sees the fresh state.
func provisioningHandler(deps HandlerDeps) Handler {
	return func(ctx context.Context, job *Job, rt *Runtime) (json.RawMessage, error) {
		if err := rt.Progress(ctx, 20, "verifying"); err != nil {
			return nil, err
		}
		tenant, err := deps.Tenants.FindByID(ctx, job.TenantID)
		if err != nil {
			return nil, err
		}

		if err := rt.Checkpoint(ctx); err != nil {
			return nil, err
		}

		if err := rt.Progress(ctx, 70, "refreshing"); err != nil {
			return nil, err
		}
		deps.Tenants.Invalidate(tenant.ID)

		if err := rt.Progress(ctx, 100, "done"); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{
			"tenant_id": tenant.ID,
			"state":     string(tenant.State),
		})
	}
}
