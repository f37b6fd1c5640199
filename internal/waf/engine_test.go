// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package waf

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexioerp/nexio/internal/platform/clock"
	"github.com/nexioerp/nexio/internal/platform/settings"
	"github.com/nexioerp/nexio/pkg/pagination"
)

type fakeRuleStore struct {
	mu       sync.Mutex
	rules    []Rule
	listErr  error
	disabled map[int64]string
}

func (f *fakeRuleStore) ListEnabled(context.Context) ([]Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []Rule
	for _, r := range f.rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRuleStore) ListAll(context.Context, pagination.Params) ([]Rule, int64, error) {
	return f.rules, int64(len(f.rules)), nil
}

func (f *fakeRuleStore) Create(_ context.Context, r *Rule) (*Rule, error) { return r, nil }
func (f *fakeRuleStore) Update(_ context.Context, r *Rule) (*Rule, error) { return r, nil }
func (f *fakeRuleStore) Delete(context.Context, int64) error              { return nil }

func (f *fakeRuleStore) Disable(_ context.Context, id int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disabled == nil {
		f.disabled = make(map[int64]string)
	}
	f.disabled[id] = reason
	return nil
}

type fakeHitStore struct {
	mu   sync.Mutex
	hits []Hit
}

func (f *fakeHitStore) Insert(_ context.Context, h *Hit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits = append(f.hits, *h)
	return nil
}

func (f *fakeHitStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.hits)
}

func newTestEngine(t *testing.T, rules []Rule) (*Engine, *fakeRuleStore, *fakeHitStore) {
	t.Helper()

	store := &fakeRuleStore{rules: rules}
	hits := &fakeHitStore{}
	registry, err := settings.NewRegistry(context.Background(), settings.Static{}, slog.Default())
	require.NoError(t, err)
	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	e := NewEngine(store, hits, registry, clk, slog.Default())
	require.NoError(t, e.Reload(context.Background()))
	return e, store, hits
}

func TestEngine_FailsClosedUntilLoaded(t *testing.T) {
	registry, err := settings.NewRegistry(context.Background(), settings.Static{}, slog.Default())
	require.NoError(t, err)
	e := NewEngine(&fakeRuleStore{}, &fakeHitStore{}, registry,
		clock.NewManual(time.Now()), slog.Default())

	r := httptest.NewRequest("GET", "/api/v1/orders", nil)
	_, err = e.Evaluate(context.Background(), r, "203.0.113.1", "req-1")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestEngine_BlockRule(t *testing.T) {
	e, _, hits := newTestEngine(t, []Rule{
		{ID: 1, Name: "path traversal", Pattern: `\.\./`, Target: TargetPath, Action: ActionBlock, Priority: 100, Enabled: true},
	})

	r := httptest.NewRequest("GET", "/api/v1/../../etc/passwd", nil)
	v, err := e.Evaluate(context.Background(), r, "203.0.113.1", "req-1")
	require.NoError(t, err)
	assert.Equal(t, ActionBlock, v.Action)
	assert.True(t, v.Blocked())
	require.NotNil(t, v.Rule)
	assert.Equal(t, int64(1), v.Rule.ID)

	// Block matches are always recorded.
	assert.Equal(t, 1, hits.count())
}

func TestEngine_NoMatchPasses(t *testing.T) {
	e, _, hits := newTestEngine(t, []Rule{
		{ID: 1, Name: "path traversal", Pattern: `\.\./`, Target: TargetPath, Action: ActionBlock, Priority: 100, Enabled: true},
	})

	r := httptest.NewRequest("GET", "/api/v1/orders", nil)
	v, err := e.Evaluate(context.Background(), r, "203.0.113.1", "req-1")
	require.NoError(t, err)
	assert.False(t, v.Blocked())
	assert.Zero(t, hits.count())
}

func TestEngine_EvaluationOrder(t *testing.T) {
	// Same pattern twice: the higher priority rule must decide; at
	// equal priority the lower id decides.
	e, _, _ := newTestEngine(t, []Rule{
		{ID: 5, Name: "low", Pattern: `admin`, Target: TargetPath, Action: ActionChallenge, Priority: 10, Enabled: true},
		{ID: 2, Name: "high", Pattern: `admin`, Target: TargetPath, Action: ActionBlock, Priority: 50, Enabled: true},
	})

	r := httptest.NewRequest("GET", "/api/v1/admin", nil)
	v, err := e.Evaluate(context.Background(), r, "203.0.113.1", "req-1")
	require.NoError(t, err)
	require.NotNil(t, v.Rule)
	assert.Equal(t, int64(2), v.Rule.ID)

	e, _, _ = newTestEngine(t, []Rule{
		{ID: 5, Name: "later", Pattern: `admin`, Target: TargetPath, Action: ActionChallenge, Priority: 10, Enabled: true},
		{ID: 2, Name: "earlier", Pattern: `admin`, Target: TargetPath, Action: ActionBlock, Priority: 10, Enabled: true},
	})
	v, err = e.Evaluate(context.Background(), r, "203.0.113.1", "req-1")
	require.NoError(t, err)
	require.NotNil(t, v.Rule)
	assert.Equal(t, int64(2), v.Rule.ID)
}

func TestEngine_LogRuleDoesNotStopEvaluation(t *testing.T) {
	e, _, hits := newTestEngine(t, []Rule{
		{ID: 1, Name: "observer", Pattern: `select`, Target: TargetQuery, Action: ActionLog, Priority: 100, Enabled: true},
		{ID: 2, Name: "sqli", Pattern: `union.+select`, Target: TargetQuery, Action: ActionBlock, Priority: 50, Enabled: true},
	})

	r := httptest.NewRequest("GET", "/api/v1/orders?q=union+all+select+1", nil)
	v, err := e.Evaluate(context.Background(), r, "203.0.113.1", "req-1")
	require.NoError(t, err)
	assert.Equal(t, ActionBlock, v.Action)
	assert.Equal(t, []int64{1}, v.LoggedRules)
	assert.Equal(t, 2, hits.count())
}

func TestEngine_Exclusions(t *testing.T) {
	rule := Rule{
		ID: 1, Name: "scanner ua", Pattern: `sqlmap`, Target: TargetUserAgent,
		Action: ActionBlock, Priority: 100, Enabled: true,
		ExcludedCIDRs:        []string{"10.0.0.0/8"},
		ExcludedPathPrefixes: []string{"/health"},
	}
	e, _, _ := newTestEngine(t, []Rule{rule})
	ctx := context.Background()

	r := httptest.NewRequest("GET", "/api/v1/orders", nil)
	r.Header.Set("User-Agent", "sqlmap/1.7")

	v, err := e.Evaluate(ctx, r, "203.0.113.1", "req-1")
	require.NoError(t, err)
	assert.True(t, v.Blocked())

	// Internal range is excluded from this rule.
	v, err = e.Evaluate(ctx, r, "10.1.2.3", "req-2")
	require.NoError(t, err)
	assert.False(t, v.Blocked())

	// Excluded path prefix passes even from a matching source.
	h := httptest.NewRequest("GET", "/health", nil)
	h.Header.Set("User-Agent", "sqlmap/1.7")
	v, err = e.Evaluate(ctx, h, "203.0.113.1", "req-3")
	require.NoError(t, err)
	assert.False(t, v.Blocked())
}

func TestEngine_BodyTarget(t *testing.T) {
	e, _, _ := newTestEngine(t, []Rule{
		{ID: 1, Name: "sqli body", Pattern: `union.+select`, Target: TargetBody, Action: ActionBlock, Priority: 100, Enabled: true},
	})
	ctx := context.Background()

	r := httptest.NewRequest("POST", "/api/v1/orders",
		strings.NewReader(`{"q":"union all select 1"}`))
	v, err := e.Evaluate(ctx, r, "203.0.113.1", "req-1")
	require.NoError(t, err)
	assert.True(t, v.Blocked())

	// The body is handed downstream intact after screening.
	remaining, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"q":"union all select 1"}`, string(remaining))

	// A body rule never matches against the path.
	r = httptest.NewRequest("GET", "/api/v1/union-all-select", nil)
	v, err = e.Evaluate(ctx, r, "203.0.113.1", "req-2")
	require.NoError(t, err)
	assert.False(t, v.Blocked())
}

func TestEngine_HeadersTarget(t *testing.T) {
	e, _, _ := newTestEngine(t, []Rule{
		{ID: 1, Name: "forwarded host block", Pattern: `X-Forwarded-Host: evil`, Target: TargetHeaders, Action: ActionBlock, Priority: 100, Enabled: true},
	})

	r := httptest.NewRequest("GET", "/api/v1/orders", nil)
	r.Header.Set("X-Forwarded-Host", "evil.example")
	v, err := e.Evaluate(context.Background(), r, "203.0.113.1", "req-1")
	require.NoError(t, err)
	assert.True(t, v.Blocked())

	clean := httptest.NewRequest("GET", "/api/v1/orders", nil)
	v, err = e.Evaluate(context.Background(), clean, "203.0.113.1", "req-2")
	require.NoError(t, err)
	assert.False(t, v.Blocked())
}

func TestEngine_AllTarget(t *testing.T) {
	e, _, _ := newTestEngine(t, []Rule{
		{ID: 1, Name: "anywhere", Pattern: `sqlmap`, Target: TargetAll, Action: ActionBlock, Priority: 100, Enabled: true},
	})
	ctx := context.Background()

	byQuery := httptest.NewRequest("GET", "/api/v1/orders?tool=sqlmap", nil)
	v, err := e.Evaluate(ctx, byQuery, "203.0.113.1", "req-1")
	require.NoError(t, err)
	assert.True(t, v.Blocked())

	byBody := httptest.NewRequest("POST", "/api/v1/orders", strings.NewReader("agent=sqlmap"))
	v, err = e.Evaluate(ctx, byBody, "203.0.113.1", "req-2")
	require.NoError(t, err)
	assert.True(t, v.Blocked())
}

func TestEngine_UnknownTargetDisablesRule(t *testing.T) {
	store := &fakeRuleStore{rules: []Rule{
		{ID: 1, Name: "stale", Pattern: `admin`, Target: "cookies", Action: ActionBlock, Priority: 100, Enabled: true},
		{ID: 2, Name: "fine", Pattern: `admin`, Target: TargetPath, Action: ActionBlock, Priority: 50, Enabled: true},
	}}
	registry, err := settings.NewRegistry(context.Background(), settings.Static{}, slog.Default())
	require.NoError(t, err)
	e := NewEngine(store, &fakeHitStore{}, registry, clock.NewManual(time.Now()), slog.Default())

	require.NoError(t, e.Reload(context.Background()))

	// The stale rule is disabled instead of silently screening the
	// wrong surface; the rest still serve.
	assert.Contains(t, store.disabled[1], "unknown inspect target")

	r := httptest.NewRequest("GET", "/api/v1/admin", nil)
	v, err := e.Evaluate(context.Background(), r, "203.0.113.1", "req-1")
	require.NoError(t, err)
	assert.True(t, v.Blocked())
}

func TestEngine_InvalidPatternDisablesRule(t *testing.T) {
	store := &fakeRuleStore{rules: []Rule{
		{ID: 1, Name: "broken", Pattern: `([`, Target: TargetPath, Action: ActionBlock, Priority: 100, Enabled: true},
		{ID: 2, Name: "fine", Pattern: `admin`, Target: TargetPath, Action: ActionBlock, Priority: 50, Enabled: true},
	}}
	registry, err := settings.NewRegistry(context.Background(), settings.Static{}, slog.Default())
	require.NoError(t, err)
	e := NewEngine(store, &fakeHitStore{}, registry, clock.NewManual(time.Now()), slog.Default())

	require.NoError(t, e.Reload(context.Background()))

	// The broken rule is reported and disabled, the rest still serve.
	assert.Contains(t, store.disabled[1], "does not compile")

	r := httptest.NewRequest("GET", "/api/v1/admin", nil)
	v, err := e.Evaluate(context.Background(), r, "203.0.113.1", "req-1")
	require.NoError(t, err)
	assert.True(t, v.Blocked())
}

func TestEngine_ReloadKeepsSnapshotOnFetchFailure(t *testing.T) {
	e, store, _ := newTestEngine(t, []Rule{
		{ID: 1, Name: "block", Pattern: `admin`, Target: TargetPath, Action: ActionBlock, Priority: 100, Enabled: true},
	})

	store.mu.Lock()
	store.listErr = errors.New("store down")
	store.mu.Unlock()
	require.Error(t, e.Reload(context.Background()))

	// The previous snapshot still screens.
	r := httptest.NewRequest("GET", "/api/v1/admin", nil)
	v, err := e.Evaluate(context.Background(), r, "203.0.113.1", "req-1")
	require.NoError(t, err)
	assert.True(t, v.Blocked())
}
