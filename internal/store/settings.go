package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"evsehub/internal/docstore"
	"evsehub/internal/models"
)

// ErrBadSettings rejects an unparseable settings document.
var ErrBadSettings = errors.New("store: invalid settings document")

// SettingsStore reads and replaces the singleton settings record. Reads always
// go through the blob store so every computation sees the latest write; the
// mutex only serializes writers. Keys a stored document leaves out fall back
// to defaults, but explicit values, zeros included, are preserved.
type SettingsStore struct {
	mu       sync.Mutex
	docs     docstore.Store
	defaults models.Settings
	logger   *zap.Logger
}

// NewSettingsStore returns the store and seeds defaults if nothing was ever
// saved. defaultTZ is the deployment timezone applied to records that do not
// set their own.
func NewSettingsStore(ctx context.Context, docs docstore.Store, defaultTZ string, logger *zap.Logger) *SettingsStore {
	defaults := models.DefaultSettings()
	defaults.Timezone = defaultTZ

	s := &SettingsStore{docs: docs, defaults: defaults, logger: logger}
	if _, err := docs.Get(ctx, docstore.KeySettings); errors.Is(err, docstore.ErrNotFound) {
		if err := s.Put(ctx, defaults); err != nil {
			logger.Warn("seed default settings", zap.Error(err))
		}
	}
	return s
}

// Get returns a consistent snapshot of the current settings. Unreadable or
// missing records fall back to defaults so a corrupt file cannot take the
// dashboard down.
func (s *SettingsStore) Get(ctx context.Context) models.Settings {
	data, err := s.docs.Get(ctx, docstore.KeySettings)
	if err != nil {
		if !errors.Is(err, docstore.ErrNotFound) {
			s.logger.Warn("read settings, using defaults", zap.Error(err))
		}
		return s.defaults
	}

	settings, err := models.DecodeSettings(data, s.defaults)
	if err != nil {
		s.logger.Warn("decode settings, using defaults", zap.Error(err))
		return s.defaults
	}
	return settings
}

// Put replaces the whole record atomically.
func (s *SettingsStore) Put(ctx context.Context, settings models.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("store: encode settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs.Put(ctx, docstore.KeySettings, data)
}

// PutDocument decodes a raw settings document, fills any keys the caller left
// out from defaults, and stores the merged record. The merged result is
// returned so the API can echo what was actually saved.
func (s *SettingsStore) PutDocument(ctx context.Context, data []byte) (models.Settings, error) {
	settings, err := models.DecodeSettings(data, s.defaults)
	if err != nil {
		return models.Settings{}, fmt.Errorf("%w: %v", ErrBadSettings, err)
	}
	if err := s.Put(ctx, settings); err != nil {
		return models.Settings{}, err
	}
	return settings, nil
}
