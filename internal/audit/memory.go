// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package audit

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/nexioerp/nexio/pkg/pagination"
)

// MemoryStore is an in-process Store for tests and local tooling.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	events []Event
}

// NewMemoryStore creates an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) InsertBatch(_ context.Context, events []Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range events {
		m.nextID++
		e.ID = m.nextID
		m.events = append(m.events, e)
	}
	return nil
}

func (m *MemoryStore) Search(_ context.Context, f Filter, p pagination.Params) ([]Event, int64, error) {
	matches := m.matching(f)

	total := int64(len(matches))
	start := p.Offset()
	if start > len(matches) {
		start = len(matches)
	}
	end := start + p.Limit
	if p.Limit <= 0 || end > len(matches) {
		end = len(matches)
	}
	return matches[start:end], total, nil
}

func (m *MemoryStore) SearchAll(_ context.Context, f Filter, yield func(Event) error) error {
	for _, e := range m.matching(f) {
		if err := yield(e); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored events.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

func matchesText(e Event, text string) bool {
	needle := strings.ToLower(text)
	for _, haystack := range []string{e.Action, e.Path, e.ErrorCode} {
		if strings.Contains(strings.ToLower(haystack), needle) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) matching(f Filter) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Event
	for _, e := range m.events {
		if f.TenantID != "" && e.TenantID != f.TenantID {
			continue
		}
		if f.PrincipalID != "" && e.PrincipalID != f.PrincipalID {
			continue
		}
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if f.Severity != "" && e.Severity != f.Severity {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.Outcome != "" && e.Outcome != f.Outcome {
			continue
		}
		if f.ErrorCode != "" && e.ErrorCode != f.ErrorCode {
			continue
		}
		if f.Text != "" && !matchesText(e, f.Text) {
			continue
		}
		if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !e.CreatedAt.Before(f.To) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
