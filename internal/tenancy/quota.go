// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package tenancy

import (
	"context"
	"log/slog"

	"github.com/nexioerp/nexio/internal/platform/apperr"
)

// QuotaEvaluator enforces plan limits on metered operations.
type QuotaEvaluator struct {
	store Store
	log   *slog.Logger
}

// NewQuotaEvaluator wires the quota evaluator.
func NewQuotaEvaluator(store Store, log *slog.Logger) *QuotaEvaluator {
	return &QuotaEvaluator{store: store, log: log}
}

/*
Evaluate checks whether a tenant may consume one more unit of each
listed usage kind.

The subscription gate runs first: with an inactive subscription no
metered operation is allowed, whatever the counters say. Limits of
zero are unmetered. All kinds are evaluated before answering, so every
exceeded counter is logged even when the first one already decides the
outcome; the returned error names the first exceeded kind in argument
order.

Parameters:
  - ctx: request context.
  - tenant: resolved tenant; nil (tenantless scope) passes vacuously.
  - kinds: usage kinds the operation would consume.

Returns:
  - error: SUBSCRIPTION_INACTIVE, QUOTA_EXCEEDED_<KIND>, or an
    infrastructure failure.
*/
func (e *QuotaEvaluator) Evaluate(ctx context.Context, tenant *Tenant, kinds ...string) error {
	if tenant == nil || len(kinds) == 0 {
		return nil
	}
	if !tenant.SubscriptionActive {
		return apperr.SubscriptionInactive()
	}

	plan, err := e.store.PlanOf(ctx, tenant.ID)
	if err != nil {
		return err
	}

	// Skip the usage read entirely when nothing is metered.
	metered := make([]string, 0, len(kinds))
	for _, k := range kinds {
		if plan.LimitFor(k) > 0 {
			metered = append(metered, k)
		}
	}
	if len(metered) == 0 {
		return nil
	}

	usage, err := e.store.Usage(ctx, tenant.ID, metered)
	if err != nil {
		return err
	}

	var violation *apperr.AppError
	for _, k := range metered {
		limit := plan.LimitFor(k)
		current := usage[k]
		if current+1 > limit {
			e.log.Info("quota exceeded",
				"tenant_id", tenant.ID, "kind", k, "current", current, "limit", limit)
			if violation == nil {
				violation = apperr.QuotaExceeded(k, current, limit)
			}
		}
	}
	if violation != nil {
		return violation
	}
	return nil
}
