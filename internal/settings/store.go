// Package settings persists the small amount of process-wide configuration
// that survives restarts: where bet reports get posted. The file is re-read on
// every access so edits made while the agent runs take effect on the next bet.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Settings is the persisted configuration document.
type Settings struct {
	APIURL string `json:"api_url"`
}

// Store manages the settings file on disk.
type Store struct {
	path          string
	defaultAPIURL string
	mu            sync.RWMutex
}

// NewStore creates a Store and ensures the parent directory exists.
func NewStore(path, defaultAPIURL string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("settings store: mkdir: %w", err)
	}
	return &Store{path: path, defaultAPIURL: defaultAPIURL}, nil
}

// Get reads the settings file. A missing or unreadable file yields the
// defaults rather than an error.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Settings{APIURL: s.defaultAPIURL}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return out
	}

	var saved Settings
	if err := json.Unmarshal(data, &saved); err != nil {
		return out
	}
	if saved.APIURL != "" {
		out.APIURL = saved.APIURL
	}
	return out
}

// APIURL returns the configured report endpoint, falling back to the default.
func (s *Store) APIURL() string {
	return s.Get().APIURL
}

// Put writes the settings file.
func (s *Store) Put(settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("settings store: marshal: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("settings store: write: %w", err)
	}
	return nil
}
