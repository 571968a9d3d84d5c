// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// memoryStore keeps sessions in a map behind a single mutex.
//
// # Description
//
// One coarse lock serializes every operation, so multi-key writes are
// trivially atomic. Each write triggers a sweep that examines at most
// sweepBudget sessions; Go's randomized map iteration spreads successive
// sweeps over the whole map. Expired sessions that the sweep has not yet
// reached are treated as unknown on access.
//
// # Thread Safety
//
// Safe for concurrent use.
type memoryStore struct {
	mu          sync.Mutex
	sessions    map[string]*record
	ttl         time.Duration
	now         func() time.Time
	sweepBudget int
	onEvict     func(int)
	logger      *slog.Logger
	closed      bool
}

func newMemoryStore(cfg *storeConfig) *memoryStore {
	return &memoryStore{
		sessions:    make(map[string]*record),
		ttl:         cfg.ttl,
		now:         cfg.now,
		sweepBudget: cfg.sweepBudget,
		onEvict:     cfg.onEvict,
		logger:      cfg.logger,
	}
}

// Get implements Store.
func (s *memoryStore) Get(_ context.Context, sessionID, key string, def any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return def, ErrClosed
	}
	rec := s.touch(sessionID)
	if v, ok := rec.Values[key]; ok {
		return v, nil
	}
	return def, nil
}

// Set implements Store.
func (s *memoryStore) Set(_ context.Context, sessionID, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.touch(sessionID).Values[key] = value
	s.sweepLocked(sessionID)
	return nil
}

// Update implements Store.
func (s *memoryStore) Update(_ context.Context, sessionID string, values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	rec := s.touch(sessionID)
	for k, v := range values {
		rec.Values[k] = v
	}
	s.sweepLocked(sessionID)
	return nil
}

// Replace implements Store.
func (s *memoryStore) Replace(_ context.Context, sessionID string, values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.sessions[sessionID] = &record{Values: copyValues(values), LastActivity: s.now()}
	s.sweepLocked(sessionID)
	return nil
}

// Clear implements Store.
func (s *memoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.sessions[sessionID] = &record{Values: map[string]any{}, LastActivity: s.now()}
	return nil
}

// Delete implements Store.
func (s *memoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	delete(s.sessions, sessionID)
	return nil
}

// Sweep implements Store. Unlike the opportunistic sweep it examines every
// session.
func (s *memoryStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	return s.evictLocked("", len(s.sessions)), nil
}

// Close implements Store.
func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.sessions = nil
	return nil
}

// Len reports the number of stored sessions, expired or not.
func (s *memoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// touch returns the live record for sessionID, creating it (or replacing an
// expired one) as needed, and refreshes its last activity. Caller holds mu.
func (s *memoryStore) touch(sessionID string) *record {
	now := s.now()
	rec, ok := s.sessions[sessionID]
	if !ok || rec.expired(now, s.ttl) {
		rec = &record{Values: map[string]any{}}
		s.sessions[sessionID] = rec
	}
	rec.LastActivity = now
	return rec
}

// sweepLocked runs the bounded opportunistic sweep. Caller holds mu.
func (s *memoryStore) sweepLocked(keep string) {
	s.evictLocked(keep, s.sweepBudget)
}

func (s *memoryStore) evictLocked(keep string, budget int) int {
	now := s.now()
	examined, evicted := 0, 0
	for id, rec := range s.sessions {
		if examined >= budget {
			break
		}
		examined++
		if id != keep && rec.expired(now, s.ttl) {
			delete(s.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Debug("evicted expired sessions", "count", evicted, "remaining", len(s.sessions))
		if s.onEvict != nil {
			s.onEvict(evicted)
		}
	}
	return evicted
}

var _ Store = (*memoryStore)(nil)
