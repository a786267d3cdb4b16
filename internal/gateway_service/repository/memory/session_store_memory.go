package memory

import (
	"context"
	"sync"
	"time"
)

// SessionStore is an in-process implementation of repository.SessionStore.
// It backs tests and serves as the degraded-mode fallback when Redis is
// unreachable: the service keeps buffering instead of failing requests.
type SessionStore struct {
	mu        sync.Mutex
	buffers   map[string]*bufferEntry
	cooldowns map[string]time.Time
	orders    map[string]orderEntry
	now       func() time.Time
}

type bufferEntry struct {
	messages  []string
	expiresAt time.Time
}

type orderEntry struct {
	value     string
	expiresAt time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		buffers:   make(map[string]*bufferEntry),
		cooldowns: make(map[string]time.Time),
		orders:    make(map[string]orderEntry),
		now:       time.Now,
	}
}

func (s *SessionStore) PushToBuffer(_ context.Context, customerID, text string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.buffers[customerID]
	if entry == nil || s.now().After(entry.expiresAt) {
		entry = &bufferEntry{expiresAt: s.now().Add(ttl)}
		s.buffers[customerID] = entry
	}
	entry.messages = append(entry.messages, text)
	return true
}

func (s *SessionStore) BufferLength(_ context.Context, customerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.buffers[customerID]
	if entry == nil || s.now().After(entry.expiresAt) {
		return 0
	}
	return len(entry.messages)
}

func (s *SessionStore) PopAllAndClear(_ context.Context, customerID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.buffers[customerID]
	delete(s.buffers, customerID)
	if entry == nil || s.now().After(entry.expiresAt) {
		return nil
	}
	return entry.messages
}

func (s *SessionStore) SetCooldown(_ context.Context, customerID string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldowns[customerID] = s.now().Add(ttl)
	return true
}

func (s *SessionStore) IsInCooldown(_ context.Context, customerID string) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline, ok := s.cooldowns[customerID]
	if !ok {
		return false, -1
	}
	remaining := deadline.Sub(s.now())
	if remaining <= 0 {
		delete(s.cooldowns, customerID)
		return false, -1
	}
	return true, int(remaining.Seconds())
}

func (s *SessionStore) SetOrderActive(_ context.Context, customerID, value string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[customerID] = orderEntry{value: value, expiresAt: s.now().Add(ttl)}
	return true
}

func (s *SessionStore) IsOrderExpired(_ context.Context, customerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.orders[customerID]
	if !ok || s.now().After(entry.expiresAt) {
		delete(s.orders, customerID)
		return true
	}
	return false
}

func (s *SessionStore) RenewOrderTTL(_ context.Context, customerID string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.orders[customerID]
	if !ok || s.now().After(entry.expiresAt) {
		delete(s.orders, customerID)
		return false
	}
	entry.expiresAt = s.now().Add(ttl)
	s.orders[customerID] = entry
	return true
}
