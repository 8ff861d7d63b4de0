// SPDX-FileCopyrightText: Copyright 2025 Trackdeck Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"sync"
	"time"
)

// timedEntry wraps a value with its expiry for TTL tracking.
type timedEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func (e *timedEntry[T]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// defaultCleanupInterval is how often the background sweep removes expired
// flow states.
const defaultCleanupInterval = time.Minute

// MemoryStore implements Store with in-memory maps. It is thread-safe and
// suitable for development and single-instance deployments; multi-instance
// deployments need the Redis backend since callbacks may land on any
// instance.
type MemoryStore struct {
	mu sync.RWMutex

	// flows maps state token -> flow state. Entries are one-time-use and
	// removed on consume or by the cleanup sweep once expired.
	flows map[string]*timedEntry[*FlowState]

	// tokens and links map user ID -> record. No TTL; records live until
	// replaced or the user disconnects.
	tokens map[string]*TokenRecord
	links  map[string]*LinkStatus

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupDone     chan struct{}
}

// MemoryStoreOption configures a MemoryStore instance.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets a custom cleanup interval.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.cleanupInterval = interval
	}
}

// NewMemoryStore creates a MemoryStore and starts the background cleanup
// goroutine. Call Close to stop it.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		flows:           make(map[string]*timedEntry[*FlowState]),
		tokens:          make(map[string]*TokenRecord),
		links:           make(map[string]*LinkStatus),
		cleanupInterval: defaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.cleanupLoop()
	return s
}

// Close stops the cleanup goroutine and waits for it to finish.
func (s *MemoryStore) Close() error {
	close(s.stopCleanup)
	<-s.cleanupDone
	return nil
}

func (s *MemoryStore) cleanupLoop() {
	defer close(s.cleanupDone)
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.removeExpiredFlows()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) removeExpiredFlows() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for state, entry := range s.flows {
		if entry.expired(now) {
			delete(s.flows, state)
		}
	}
}

// PutFlowState stores a flow state under the state token with FlowStateTTL.
func (s *MemoryStore) PutFlowState(_ context.Context, state string, fs *FlowState) error {
	cp := *fs
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[state] = &timedEntry[*FlowState]{
		value:     &cp,
		expiresAt: time.Now().Add(FlowStateTTL),
	}
	return nil
}

// ConsumeFlowState atomically reads and deletes a flow state. The delete
// happens under the same lock as the read, so concurrent consumes of one
// token yield the state to exactly one caller.
func (s *MemoryStore) ConsumeFlowState(_ context.Context, state string) (*FlowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.flows[state]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.flows, state)

	if entry.expired(time.Now()) {
		return nil, ErrExpired
	}
	cp := *entry.value
	return &cp, nil
}

// GetTokenRecord returns a copy of the user's token record.
func (s *MemoryStore) GetTokenRecord(_ context.Context, userID string) (*TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tokens[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	cp.Scopes = append([]string(nil), rec.Scopes...)
	return &cp, nil
}

// ReplaceTokenRecord overwrites the user's token record.
func (s *MemoryStore) ReplaceTokenRecord(_ context.Context, userID string, rec *TokenRecord) error {
	cp := *rec
	cp.Scopes = append([]string(nil), rec.Scopes...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[userID] = &cp
	return nil
}

// DeleteTokenRecord removes the user's token record. Deleting a missing
// record is not an error; disconnect must be idempotent.
func (s *MemoryStore) DeleteTokenRecord(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, userID)
	return nil
}

// GetLinkStatus returns a copy of the user's link status.
func (s *MemoryStore) GetLinkStatus(_ context.Context, userID string) (*LinkStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.links[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *status
	return &cp, nil
}

// PutLinkStatus stores the user's link status.
func (s *MemoryStore) PutLinkStatus(_ context.Context, userID string, status *LinkStatus) error {
	cp := *status
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[userID] = &cp
	return nil
}

// DeleteLinkStatus removes the user's link status.
func (s *MemoryStore) DeleteLinkStatus(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, userID)
	return nil
}
