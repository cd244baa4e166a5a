// Package prefs persists the dashboard's small per-user preferences: the
// REST-vs-GraphQL transport choice, the session token, and the
// dismissed-banner flag.
package prefs

import "sync"

// Well-known preference keys.
const (
	KeyAPIMode         = "api_mode"      // "rest" | "graphql"
	KeySessionToken    = "session_token" // bearer credential, restored on reload
	KeyBannerDismissed = "banner_dismissed"
)

// Store is a two-way key-value slot set. Get returns ("", false) for an
// absent key. Implementations must treat unreadable backing storage as
// "no saved preference" rather than an error — a missing preference file
// must never break startup.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{values: make(map[string]string)}
}

func (s *MemStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok
}

func (s *MemStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
