// Package memory provides an in-memory config.Store implementation.
// Intended for testing. Configuration is not persisted across restarts.
package memory

import (
	"context"
	"sync"

	"anabatch/internal/config"
)

// Store is an in-memory config.Store implementation.
type Store struct {
	mu  sync.RWMutex
	cfg *config.Config
}

var _ config.Store = (*Store)(nil)

// NewStore creates a new in-memory config.Store, initially empty.
func NewStore() *Store {
	return &Store{}
}

// Load returns a deep-enough copy of the stored configuration, or nil
// if Save has never been called.
func (s *Store) Load(ctx context.Context) (*config.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg == nil {
		return nil, nil
	}
	return cloneConfig(s.cfg), nil
}

// Save replaces the stored configuration.
func (s *Store) Save(ctx context.Context, cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cloneConfig(cfg)
	return nil
}

func cloneConfig(cfg *config.Config) *config.Config {
	clone := *cfg
	if cfg.Channels != nil {
		clone.Channels = make(map[string]config.ChannelConfig, len(cfg.Channels))
		for k, v := range cfg.Channels {
			cc := v
			if v.ExtraOpts != nil {
				cc.ExtraOpts = make(map[string]string, len(v.ExtraOpts))
				for ek, ev := range v.ExtraOpts {
					cc.ExtraOpts[ek] = ev
				}
			}
			clone.Channels[k] = cc
		}
	}
	if cfg.Eras != nil {
		clone.Eras = make(map[string]config.EraConfig, len(cfg.Eras))
		for k, v := range cfg.Eras {
			clone.Eras[k] = v
		}
	}
	return &clone
}
