// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexioerp/nexio/internal/iam/authz"
	"github.com/nexioerp/nexio/internal/platform/clock"
	"github.com/nexioerp/nexio/internal/platform/constants"
	"github.com/nexioerp/nexio/pkg/pagination"
)

func testClock() *clock.Manual {
	return clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func TestSink_RecordNeverBlocks(t *testing.T) {
	sink := NewSink(NewMemoryStore(), testClock(), slog.Default())

	// Nobody is draining, yet far more events than the queue holds
	// must be accepted without stalling.
	overfill := constants.AuditQueueCapacity + 500
	done := make(chan struct{})
	go func() {
		for i := 0; i < overfill; i++ {
			sink.Record(Event{Action: "op", RequestID: strconv.Itoa(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	assert.Equal(t, uint64(500), sink.Dropped())
}

func TestSink_DropsOldestFirst(t *testing.T) {
	store := NewMemoryStore()
	sink := NewSink(store, testClock(), slog.Default())

	overfill := constants.AuditQueueCapacity + 10
	for i := 0; i < overfill; i++ {
		sink.Record(Event{Action: "op", RequestID: strconv.Itoa(i)})
	}

	ctx, cancel := context.WithCancel(context.Background())
	go sink.Run(ctx)
	cancel()
	sink.Wait()

	// The survivors are the newest events; the first ten went.
	events, _, err := store.Search(context.Background(), Filter{}, pagination.Params{Limit: 1})
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, constants.AuditQueueCapacity, store.Len())

	all := map[string]bool{}
	require.NoError(t, store.SearchAll(context.Background(), Filter{}, func(e Event) error {
		all[e.RequestID] = true
		return nil
	}))
	assert.False(t, all["0"], "oldest event should have been evicted")
	assert.True(t, all[strconv.Itoa(overfill-1)], "newest event must survive")
}

func TestSink_BatchWriterFlushesAndDrains(t *testing.T) {
	store := NewMemoryStore()
	sink := NewSink(store, testClock(), slog.Default())

	total := constants.AuditBatchSize*2 + 7
	for i := 0; i < total; i++ {
		sink.Record(Event{Action: "op", RequestID: strconv.Itoa(i)})
	}

	ctx, cancel := context.WithCancel(context.Background())
	go sink.Run(ctx)
	cancel()
	sink.Wait()

	assert.Equal(t, total, store.Len())
}

func TestSink_StampsCreatedAt(t *testing.T) {
	clk := testClock()
	store := NewMemoryStore()
	sink := NewSink(store, clk, slog.Default())

	sink.Record(Event{Action: "op"})

	ctx, cancel := context.WithCancel(context.Background())
	go sink.Run(ctx)
	cancel()
	sink.Wait()

	require.Equal(t, 1, store.Len())
	require.NoError(t, store.SearchAll(context.Background(), Filter{}, func(e Event) error {
		assert.Equal(t, clk.Now(), e.CreatedAt)
		return nil
	}))
}

func TestSink_GuestAccessAdapter(t *testing.T) {
	store := NewMemoryStore()
	sink := NewSink(store, testClock(), slog.Default())

	sink.RecordGuestAccess(context.Background(), authz.GuestAccess{
		Email:     "guest@acme.test",
		ClientIP:  "203.0.113.1",
		Allowed:   false,
		Reason:    "guest_email_mismatch",
		Timestamp: testClock().Now(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	go sink.Run(ctx)
	cancel()
	sink.Wait()

	events, total, err := store.Search(context.Background(), Filter{Action: "guest_access"}, pagination.Params{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, events, 1)
	assert.Equal(t, OutcomeDenied, events[0].Outcome)
	assert.Equal(t, "guest_email_mismatch", events[0].ErrorCode)
	assert.Equal(t, "guest@acme.test", events[0].Metadata["email"])
}

func TestMemoryStore_SearchFilters(t *testing.T) {
	store := NewMemoryStore()
	base := testClock().Now()
	require.NoError(t, store.InsertBatch(context.Background(), []Event{
		{TenantID: "tnt-1", Action: "orders.create", Outcome: OutcomeAllowed, CreatedAt: base},
		{TenantID: "tnt-1", Action: "orders.create", Outcome: OutcomeDenied, ErrorCode: "QUOTA_EXCEEDED_ORDERS", CreatedAt: base.Add(time.Minute)},
		{TenantID: "tnt-2", Action: "orders.create", Outcome: OutcomeAllowed, CreatedAt: base.Add(2 * time.Minute)},
	}))

	events, total, err := store.Search(context.Background(),
		Filter{TenantID: "tnt-1", Outcome: OutcomeDenied}, pagination.Params{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, events, 1)
	assert.Equal(t, "QUOTA_EXCEEDED_ORDERS", events[0].ErrorCode)

	// Time bounds are half-open: [From, To).
	events, _, err = store.Search(context.Background(),
		Filter{From: base.Add(time.Minute), To: base.Add(2 * time.Minute)}, pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, OutcomeDenied, events[0].Outcome)
}

func TestMemoryStore_TextAndSeverity(t *testing.T) {
	store := NewMemoryStore()
	base := testClock().Now()
	require.NoError(t, store.InsertBatch(context.Background(), []Event{
		{Category: "admission", Severity: SeverityInfo, Action: "orders.create", Path: "/api/v1/orders", CreatedAt: base},
		{Category: "admission", Severity: SeverityWarning, Action: "waf.block", Path: "/api/v1/admin", CreatedAt: base},
	}))

	events, total, err := store.Search(context.Background(),
		Filter{Text: "ADMIN"}, pagination.Params{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, events, 1)
	assert.Equal(t, SeverityWarning, events[0].Severity)

	_, total, err = store.Search(context.Background(),
		Filter{Severity: SeverityInfo}, pagination.Params{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestExportCSV_StableColumns(t *testing.T) {
	store := NewMemoryStore()
	base := testClock().Now()
	require.NoError(t, store.InsertBatch(context.Background(), []Event{
		{
			RequestID: "req-1", TenantID: "tnt-1", PrincipalID: "prin-1",
			Action: "orders.create", Outcome: OutcomeAllowed,
			ClientIP: "203.0.113.1", Method: "POST", Path: "/api/v1/orders",
			Metadata: map[string]any{"sku": "A-100"}, CreatedAt: base,
		},
	}))

	var buf bytes.Buffer
	require.NoError(t, ExportCSV(context.Background(), store, Filter{}, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{
		"id", "created_at", "request_id", "tenant_id", "principal_id",
		"category", "severity", "action", "resource", "outcome",
		"error_code", "client_ip", "method", "path", "metadata",
	}, records[0])
	assert.Equal(t, "req-1", records[1][2])
	assert.Equal(t, "allowed", records[1][9])
	assert.Contains(t, records[1][14], `"sku":"A-100"`)
}

func TestExportCSV_EmptyStillWritesHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportCSV(context.Background(), NewMemoryStore(), Filter{}, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
}
