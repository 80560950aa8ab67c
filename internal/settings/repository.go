package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/albapepper/vakit/internal/store"
)

// Key is the Cache Store slot for the settings record.
const Key = "settings:v1"

// Repository loads and saves Settings through a Cache Store.
type Repository struct {
	store  store.Store
	logger *slog.Logger
}

// NewRepository creates a settings repository.
func NewRepository(s store.Store, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{store: s, logger: logger}
}

// Load returns the persisted settings, or defaults on first read. A corrupt
// payload also yields defaults; only store failures are errors.
func (r *Repository) Load(ctx context.Context) (Settings, error) {
	raw, ok, err := r.store.Get(ctx, Key)
	if err != nil {
		return Default(), fmt.Errorf("load settings: %w", err)
	}
	if !ok {
		return Default(), nil
	}
	return Decode([]byte(raw)), nil
}

// Save persists s after normalizing it through Decode, so the stored record
// always satisfies the one-record-per-prayer invariant.
func (r *Repository) Save(ctx context.Context, s Settings) (Settings, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return s, fmt.Errorf("encode settings: %w", err)
	}
	normalized := Decode(data)
	data, err = json.Marshal(normalized)
	if err != nil {
		return s, fmt.Errorf("encode settings: %w", err)
	}
	if err := r.store.Set(ctx, Key, string(data)); err != nil {
		return s, fmt.Errorf("save settings: %w", err)
	}
	r.logger.Debug("Settings saved",
		"provider", normalized.TimingsProvider,
		"method", normalized.MethodID,
		"location_mode", normalized.LocationMode)
	return normalized, nil
}
