package main

import (
	"sync"

	"github.com/google/uuid"
)

// SessionStore is the process-wide set of authenticated account
// identifiers. Every gated action consults it; entries are added only
// after premium verification or an offline password success.
type SessionStore struct {
	mu       sync.RWMutex
	loggedIn map[uuid.UUID]struct{}
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{loggedIn: make(map[uuid.UUID]struct{})}
}

// Login marks the account as authenticated. Idempotent.
func (s *SessionStore) Login(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedIn[id] = struct{}{}
}

// Logout removes the account's session. Idempotent; a no-op for
// accounts that are not logged in.
func (s *SessionStore) Logout(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.loggedIn, id)
}

// IsLoggedIn reports whether the account is currently authenticated.
func (s *SessionStore) IsLoggedIn(id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.loggedIn[id]
	return ok
}

// Count returns the number of authenticated accounts.
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.loggedIn)
}
