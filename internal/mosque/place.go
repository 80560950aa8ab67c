package mosque

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/albapepper/vakit/internal/external"
	"github.com/albapepper/vakit/internal/geo"
	"github.com/albapepper/vakit/internal/location"
	"github.com/albapepper/vakit/internal/store"
	"github.com/albapepper/vakit/internal/timings"
)

const (
	// DefaultRadius is the search radius in meters.
	DefaultRadius = 3000
	placeMaxAge   = 7 * 24 * time.Hour
)

// Source looks up mosques around a point.
type Source interface {
	Mosques(ctx context.Context, lat, lon float64, radiusMeters int) ([]external.POI, error)
}

// Place is the cached per-location record.
type Place struct {
	Qibla     float64       `json:"qibla"`
	Mosques   []Destination `json:"mosques"`
	UpdatedAt string        `json:"updatedAt"` // RFC 3339
}

// PlaceKey is the Cache Store key for a location's place data.
func PlaceKey(fix location.Fix) string {
	return fmt.Sprintf("place:v1:%.2f:%.2f", timings.Round2(fix.Lat), timings.Round2(fix.Lon))
}

// Finder serves place data cache first.
type Finder struct {
	source Source
	store  store.Store
	now    func() time.Time
	logger *slog.Logger
}

// NewFinder creates a finder. A nil source serves qibla only.
func NewFinder(source Source, s store.Store, logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{source: source, store: s, now: time.Now, logger: logger}
}

// Nearby returns place data for fix. A fresh cached record is returned as
// is; otherwise the source is queried and the result cached. When the
// source fails, a stale record is better than none.
func (f *Finder) Nearby(ctx context.Context, fix location.Fix, radiusMeters int) (Place, error) {
	if radiusMeters <= 0 {
		radiusMeters = DefaultRadius
	}
	key := PlaceKey(fix)

	var cached Place
	ok, err := store.GetJSON(ctx, f.store, key, &cached)
	if err != nil {
		f.logger.Warn("Discarding unreadable place data", "key", key, "error", err)
		ok = false
	}
	if ok && f.fresh(cached) {
		return cached, nil
	}

	place := Place{Qibla: geo.Qibla(fix.Lat, fix.Lon)}
	if f.source != nil {
		pois, err := f.source.Mosques(ctx, fix.Lat, fix.Lon, radiusMeters)
		if err != nil {
			if ok {
				f.logger.Warn("Mosque lookup failed, serving stale place data", "key", key, "error", err)
				return cached, nil
			}
			return Place{}, fmt.Errorf("nearby mosques: %w", err)
		}
		for _, p := range pois {
			place.Mosques = append(place.Mosques, Destination{
				ID:         strconv.FormatInt(p.ID, 10),
				Name:       p.Name,
				Lat:        p.Lat,
				Lon:        p.Lon,
				DistanceKm: geo.DistanceKm(fix.Lat, fix.Lon, p.Lat, p.Lon),
			})
		}
	}
	place.UpdatedAt = f.now().UTC().Format(time.RFC3339)

	if err := store.SetJSON(ctx, f.store, key, place); err != nil {
		f.logger.Warn("Failed to cache place data", "key", key, "error", err)
	}
	return place, nil
}

func (f *Finder) fresh(p Place) bool {
	t, err := time.Parse(time.RFC3339, p.UpdatedAt)
	if err != nil {
		return false
	}
	return f.now().Sub(t) < placeMaxAge
}
