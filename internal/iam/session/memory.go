// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nexioerp/nexio/internal/platform/apperr"
)

// MemoryStore is an in-process Store for tests and local tooling.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Insert(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.Hash] = &cp
	return nil
}

func (m *MemoryStore) FindByHash(_ context.Context, hash string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[hash]
	if !ok {
		return nil, apperr.NotFound("session")
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) MarkRevoked(_ context.Context, hash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[hash]; ok && s.RevokedAt == nil {
		t := at
		s.RevokedAt = &t
	}
	return nil
}

func (m *MemoryStore) MarkAllRevoked(_ context.Context, principalID string, at time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var hashes []string
	for _, s := range m.sessions {
		if s.PrincipalID == principalID && s.RevokedAt == nil && s.ExpiresAt.After(at) {
			t := at
			s.RevokedAt = &t
			hashes = append(hashes, s.Hash)
		}
	}
	return hashes, nil
}

func (m *MemoryStore) ListActive(_ context.Context, principalID string, now time.Time) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Session
	for _, s := range m.sessions {
		if s.PrincipalID == principalID && s.Active(now) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}
