// Package memory provides in-memory implementations of the storage ports.
// They hold no files and are used by tests and by callers that never
// persist state.
package memory

import (
	"maps"
	"slices"
	"sync"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driven"
)

// Ensure ConfigStore implements the interface.
var _ driven.ConfigStore = (*ConfigStore)(nil)

// ConfigStore is an in-memory implementation of driven.ConfigStore.
type ConfigStore struct {
	mu       sync.RWMutex
	settings *domain.Settings
	saves    int
}

// NewConfigStore creates a config store holding settings. Nil settings
// start from domain.DefaultSettings. The pointer is kept, so changes the
// caller makes before the next Load are visible.
func NewConfigStore(settings *domain.Settings) *ConfigStore {
	if settings == nil {
		defaults := domain.DefaultSettings()
		settings = &defaults
	}
	return &ConfigStore{settings: settings}
}

// Load returns a copy of the current settings.
func (s *ConfigStore) Load() (*domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := cloneSettings(s.settings)
	return &out, nil
}

// Save replaces the current settings with a copy of settings.
func (s *ConfigStore) Save(settings *domain.Settings) error {
	if settings == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := cloneSettings(settings)
	s.settings = &saved
	s.saves++
	return nil
}

// Settings returns the settings currently held.
func (s *ConfigStore) Settings() *domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Saves returns how many times Save succeeded.
func (s *ConfigStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return ":memory:"
}

func cloneSettings(in *domain.Settings) domain.Settings {
	out := *in
	out.Extractor.Command = slices.Clone(in.Extractor.Command)
	if in.Sources != nil {
		out.Sources = make([]domain.Source, len(in.Sources))
		for i, src := range in.Sources {
			src.Config = maps.Clone(src.Config)
			out.Sources[i] = src
		}
	}
	return out
}
