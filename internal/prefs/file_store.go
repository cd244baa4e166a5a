package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists preferences as a flat JSON object on disk. The file
// is read once at construction and rewritten atomically on every change.
// A missing or corrupt file yields an empty store, never an error.
type FileStore struct {
	mu     sync.RWMutex
	path   string
	values map[string]string
}

// NewFileStore loads (or initializes) the preference file at path.
func NewFileStore(path string) *FileStore {
	store := &FileStore{
		path:   path,
		values: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return store
	}
	// Unparseable content is discarded; preferences are recoverable state.
	_ = json.Unmarshal(data, &store.values)
	return store
}

func (s *FileStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok
}

func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.flush()
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return s.flush()
}

// flush writes the map through a temp file and rename so a crash mid-write
// cannot corrupt the saved preferences. Caller holds the write lock.
func (s *FileStore) flush() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating preference directory: %w", err)
	}

	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing preferences: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing preferences: %w", err)
	}
	return nil
}
