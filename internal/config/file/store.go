// Package file provides a file-based config.Store implementation.
//
// Configuration is persisted as a versioned JSON envelope:
//
//	{"version": 1, "config": { ... }}
//
// Every mutation loads the full file, mutates in memory, and
// atomically flushes the entire file back. This is the nature of
// JSON — every mutation rewrites the file.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"anabatch/internal/config"
)

const currentVersion = 1

// envelope is the versioned on-disk format.
type envelope struct {
	Version int            `json:"version"`
	Config  *config.Config `json:"config"`
}

// Store is a file-based config.Store implementation. Writes are
// atomic via temp file + rename with round-trip validation.
type Store struct {
	mu   sync.Mutex
	path string
}

var _ config.Store = (*Store)(nil)

// NewStore creates a new file-based config.Store backed by the JSON
// file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the full configuration from disk. Returns nil if the
// file does not exist.
func (s *Store) Load(ctx context.Context) (*config.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save atomically writes cfg to disk, rejecting any top-level key that
// does not round-trip through config.Config (spec.md §9: unknown
// top-level keys are rejected on write).
func (s *Store) Save(ctx context.Context, cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush(cfg)
}

// load reads and parses the config file. Returns nil, nil if not found.
func (s *Store) load() (*config.Config, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if env.Version == 0 {
		return nil, fmt.Errorf("unversioned config file detected; delete %s and restart to bootstrap a fresh config", s.path)
	}
	if env.Version > currentVersion {
		return nil, fmt.Errorf("config file version %d is newer than supported version %d", env.Version, currentVersion)
	}
	if env.Version < currentVersion {
		if err := migrateFile(s.path, data, env.Version); err != nil {
			return nil, fmt.Errorf("migrate config: %w", err)
		}
		data, err = os.ReadFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("read migrated config: %w", err)
		}
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("parse migrated config: %w", err)
		}
	}

	if env.Config == nil {
		return nil, nil
	}
	return env.Config, nil
}

// flush atomically writes the config to disk with round-trip validation.
func (s *Store) flush(cfg *config.Config) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	env := envelope{Version: currentVersion, Config: cfg}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o640); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	check, err := os.ReadFile(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("read-back temp file: %w", err)
	}
	var verify envelope
	if err := json.Unmarshal(check, &verify); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("round-trip validation failed: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config file: %w", err)
	}
	return nil
}
