package timings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/albapepper/vakit/internal/location"
	"github.com/albapepper/vakit/internal/prayer"
	"github.com/albapepper/vakit/internal/settings"
	"github.com/albapepper/vakit/internal/store"
)

// Source records where a CachedTimings record came from.
type Source string

const (
	SourceAPI   Source = "api"
	SourceCache Source = "cache"
)

// CachedTimings is the persisted form of one resolved day.
type CachedTimings struct {
	Timings     prayer.Timings    `json:"timings"`
	LastUpdated string            `json:"lastUpdated"` // RFC 3339
	Source      Source            `json:"source"`
	LatRounded  float64           `json:"latRounded"`
	LonRounded  float64           `json:"lonRounded"`
	Provider    settings.Provider `json:"provider"`
	MethodID    int               `json:"methodId"`
}

// NewRecord wraps freshly resolved timings.
func NewRecord(t prayer.Timings, loc location.Fix, s settings.Settings, source Source, now time.Time) CachedTimings {
	return CachedTimings{
		Timings:     t,
		LastUpdated: now.UTC().Format(time.RFC3339),
		Source:      source,
		LatRounded:  Round2(loc.Lat),
		LonRounded:  Round2(loc.Lon),
		Provider:    s.TimingsProvider,
		MethodID:    s.MethodID,
	}
}

// Repository reads and writes CachedTimings records.
type Repository struct {
	store  store.Store
	logger *slog.Logger
}

// NewRepository creates a timings repository over s.
func NewRepository(s store.Store, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{store: s, logger: logger}
}

// SaveCachedTimings writes rec under key and mirrors it to the latest slot.
// The two writes are not atomic.
func (r *Repository) SaveCachedTimings(ctx context.Context, key string, rec CachedTimings) error {
	if err := store.SetJSON(ctx, r.store, key, rec); err != nil {
		return fmt.Errorf("save timings: %w", err)
	}
	if err := store.SetJSON(ctx, r.store, LatestKey, rec); err != nil {
		return fmt.Errorf("save latest timings: %w", err)
	}
	return nil
}

// GetCachedTimings reads key. Records that fail validation are reported as
// a miss.
func (r *Repository) GetCachedTimings(ctx context.Context, key string) (CachedTimings, bool, error) {
	return r.get(ctx, key)
}

// GetLatestCachedTimings reads the latest slot.
func (r *Repository) GetLatestCachedTimings(ctx context.Context) (CachedTimings, bool, error) {
	return r.get(ctx, LatestKey)
}

func (r *Repository) get(ctx context.Context, key string) (CachedTimings, bool, error) {
	raw, ok, err := r.store.Get(ctx, key)
	if err != nil {
		return CachedTimings{}, false, fmt.Errorf("read timings %s: %w", key, err)
	}
	if !ok {
		return CachedTimings{}, false, nil
	}
	var rec CachedTimings
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		r.logger.Warn("Discarding unreadable cached timings", "key", key, "error", err)
		return CachedTimings{}, false, nil
	}
	if err := rec.Timings.Validate(); err != nil {
		r.logger.Warn("Discarding invalid cached timings", "key", key, "error", err)
		return CachedTimings{}, false, nil
	}
	return rec, true, nil
}
