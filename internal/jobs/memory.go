// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package jobs

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/nexioerp/nexio/internal/platform/apperr"
)

// MemoryStore is an in-process Store for tests and local tooling.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	byID   map[string]*Job
}

// NewMemoryStore creates an empty in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Job)}
}

func (m *MemoryStore) Insert(_ context.Context, j *Job, maxActive int) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Count and insert under one lock hold, mirroring the serialised
	// cap check of the Postgres store.
	active := 0
	for _, existing := range m.byID {
		if existing.TenantID == j.TenantID && (existing.State == StatePending || existing.State == StateRunning) {
			active++
		}
	}
	if active >= maxActive {
		return nil, apperr.TooManyConcurrentJobs()
	}

	m.nextID++
	j.ID = m.nextID
	cp := *j
	m.byID[j.JobID] = &cp
	return j, nil
}

func (m *MemoryStore) FindByJobID(_ context.Context, jobID string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.byID[jobID]
	if !ok {
		return nil, apperr.NotFound("job")
	}
	cp := *j
	return &cp, nil
}

func (m *MemoryStore) Claim(_ context.Context, now, leaseUntil time.Time) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rank each tenant's pending jobs by age, then pick the lowest
	// rank across tenants, ties broken by age.
	pending := make([]*Job, 0)
	for _, j := range m.byID {
		if j.State == StatePending {
			pending = append(pending, j)
		}
	}
	if len(pending) == 0 {
		return nil, apperr.NotFound("job")
	}
	sort.Slice(pending, func(a, b int) bool {
		if !pending[a].CreatedAt.Equal(pending[b].CreatedAt) {
			return pending[a].CreatedAt.Before(pending[b].CreatedAt)
		}
		return pending[a].ID < pending[b].ID
	})
	rank := make(map[string]int)
	var best *Job
	bestRank := -1
	for _, j := range pending {
		r := rank[j.TenantID]
		rank[j.TenantID] = r + 1
		if best == nil || r < bestRank {
			best, bestRank = j, r
		}
	}

	best.State = StateRunning
	if best.StartedAt == nil {
		started := now
		best.StartedAt = &started
	}
	lease := leaseUntil
	best.LeaseExpiresAt = &lease
	cp := *best
	return &cp, nil
}

func (m *MemoryStore) WriteProgress(_ context.Context, jobID string, progress int, step string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.byID[jobID]
	if !ok || j.State != StateRunning {
		return nil
	}
	if progress > j.Progress {
		j.Progress = progress
	}
	j.Step = step
	return nil
}

func (m *MemoryStore) RenewLease(_ context.Context, jobID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.byID[jobID]; ok && j.State == StateRunning {
		lease := until
		j.LeaseExpiresAt = &lease
	}
	return nil
}

func (m *MemoryStore) Complete(_ context.Context, jobID string, result json.RawMessage, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.byID[jobID]; ok && j.State == StateRunning {
		j.State = StateCompleted
		j.Progress = 100
		j.Result = result
		j.EndedAt = &endedAt
		j.LeaseExpiresAt = nil
	}
	return nil
}

func (m *MemoryStore) Fail(_ context.Context, jobID string, message string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.byID[jobID]; ok && j.State == StateRunning {
		j.State = StateFailed
		j.Error = message
		j.EndedAt = &endedAt
		j.LeaseExpiresAt = nil
	}
	return nil
}

func (m *MemoryStore) MarkCancelled(_ context.Context, jobID string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.byID[jobID]; ok && j.State == StateRunning {
		j.State = StateCancelled
		j.EndedAt = &endedAt
		j.LeaseExpiresAt = nil
	}
	return nil
}

func (m *MemoryStore) RequestCancel(_ context.Context, jobID string, now time.Time) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.byID[jobID]
	if !ok {
		return "", apperr.NotFound("job")
	}
	switch j.State {
	case StatePending:
		j.CancelRequested = true
		j.State = StateCancelled
		j.EndedAt = &now
	case StateRunning:
		j.CancelRequested = true
	}
	return j.State, nil
}

func (m *MemoryStore) CancelRequested(_ context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.byID[jobID]
	if !ok {
		return false, apperr.NotFound("job")
	}
	return j.CancelRequested, nil
}

func (m *MemoryStore) ReclaimExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, j := range m.byID {
		if j.State == StateRunning && j.LeaseExpiresAt != nil && j.LeaseExpiresAt.Before(now) {
			j.State = StatePending
			j.LeaseExpiresAt = nil
			n++
		}
	}
	return n, nil
}
