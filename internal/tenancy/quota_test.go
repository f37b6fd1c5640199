// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package tenancy

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexioerp/nexio/internal/platform/apperr"
)

func quotaFixture() (*QuotaEvaluator, *fakeStore) {
	store := newFakeStore()
	store.plans["plan-std"] = &Plan{
		ID:   "plan-std",
		Name: "Standard",
		Limits: map[string]int64{
			"products": 100,
			"invoices": 10,
			"exports":  0, // unmetered
		},
	}
	store.usage["tnt-1"] = map[string]int64{
		"products": 40,
		"invoices": 10,
	}
	return NewQuotaEvaluator(store, slog.Default()), store
}

func TestQuota_UnderLimit(t *testing.T) {
	e, _ := quotaFixture()

	err := e.Evaluate(context.Background(), &Tenant{ID: "tnt-1", PlanID: "plan-std", SubscriptionActive: true}, "products")
	assert.NoError(t, err)
}

func TestQuota_AtLimit(t *testing.T) {
	e, _ := quotaFixture()

	err := e.Evaluate(context.Background(), &Tenant{ID: "tnt-1", PlanID: "plan-std", SubscriptionActive: true}, "invoices")
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "QUOTA_EXCEEDED_INVOICES", ae.Code)
}

func TestQuota_ZeroMeansUnlimited(t *testing.T) {
	e, store := quotaFixture()
	store.usage["tnt-1"]["exports"] = 1 << 40

	err := e.Evaluate(context.Background(), &Tenant{ID: "tnt-1", PlanID: "plan-std", SubscriptionActive: true}, "exports")
	assert.NoError(t, err)
	// Unmetered kinds never even hit the usage store.
	assert.Zero(t, store.usageCalls)
}

func TestQuota_SubscriptionGateBeforeCounters(t *testing.T) {
	e, store := quotaFixture()

	err := e.Evaluate(context.Background(), &Tenant{ID: "tnt-1", PlanID: "plan-std", SubscriptionActive: false}, "products")
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "SUBSCRIPTION_INACTIVE", ae.Code)
	assert.Zero(t, store.usageCalls)
}

func TestQuota_FirstViolationInArgumentOrder(t *testing.T) {
	e, store := quotaFixture()
	store.usage["tnt-1"]["products"] = 100

	err := e.Evaluate(context.Background(),
		&Tenant{ID: "tnt-1", PlanID: "plan-std", SubscriptionActive: true},
		"invoices", "products")
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "QUOTA_EXCEEDED_INVOICES", ae.Code)
}

func TestQuota_TenantlessPassesVacuously(t *testing.T) {
	e, _ := quotaFixture()

	assert.NoError(t, e.Evaluate(context.Background(), nil, "products"))
}
