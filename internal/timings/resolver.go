// Package timings resolves, caches and prefetches daily prayer timings.
//
// The Resolver talks to providers only; it never reads or writes the cache.
// The Prefetcher persists what it fetches, and the Service layers the
// cache-first paths used by the replanner and the calendar views.
package timings

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/albapepper/vakit/internal/errs"
	"github.com/albapepper/vakit/internal/location"
	"github.com/albapepper/vakit/internal/prayer"
	"github.com/albapepper/vakit/internal/provider"
	"github.com/albapepper/vakit/internal/settings"
)

// Resolver dispatches timing requests to the provider selected in settings.
type Resolver struct {
	providers provider.Registry
	logger    *slog.Logger
}

// NewResolver creates a resolver over the given providers.
func NewResolver(providers provider.Registry, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{providers: providers, logger: logger}
}

// GetTimingsForDate fetches one day. Provider errors are returned unchanged
// apart from wrapping; a day whose key does not match date is a data
// integrity error.
func (r *Resolver) GetTimingsForDate(ctx context.Context, date time.Time, loc location.Fix, s settings.Settings, cityHint string) (prayer.Timings, error) {
	p, err := r.providers.For(s.TimingsProvider)
	if err != nil {
		return prayer.Timings{}, err
	}

	dateKey := prayer.DateKey(date)
	t, err := p.GetTimings(ctx, date, loc.Lat, loc.Lon, methodContext(date, s, cityHint))
	if err != nil {
		return prayer.Timings{}, fmt.Errorf("resolve %s via %s: %w", dateKey, s.TimingsProvider, err)
	}
	if t.DateKey != dateKey {
		return prayer.Timings{}, fmt.Errorf("%w: %s returned %s for %s", errs.ErrDataIntegrity, s.TimingsProvider, t.DateKey, dateKey)
	}
	return t, nil
}

// GetMonthlyTimings fetches a whole month when the selected provider supports
// it. ok is false when it does not.
func (r *Resolver) GetMonthlyTimings(ctx context.Context, year int, month time.Month, zone *time.Location, loc location.Fix, s settings.Settings, cityHint string) (map[string]prayer.Timings, bool, error) {
	p, err := r.providers.For(s.TimingsProvider)
	if err != nil {
		return nil, false, err
	}
	mp, ok := p.(provider.MonthlyProvider)
	if !ok {
		return nil, false, nil
	}
	anchor := time.Date(year, month, 1, 12, 0, 0, 0, zone)
	days, err := mp.GetMonthlyTimings(ctx, year, month, loc.Lat, loc.Lon, methodContext(anchor, s, cityHint))
	if err != nil {
		return nil, true, fmt.Errorf("resolve %d-%02d via %s: %w", year, int(month), s.TimingsProvider, err)
	}
	return days, true, nil
}

// SupportsMonthly reports whether the selected provider has a monthly
// endpoint.
func (r *Resolver) SupportsMonthly(s settings.Settings) bool {
	p, err := r.providers.For(s.TimingsProvider)
	if err != nil {
		return false
	}
	_, ok := p.(provider.MonthlyProvider)
	return ok
}

// methodContext builds provider inputs. In manual mode the manual label is
// the city hint; in GPS mode the caller's hint is used.
func methodContext(date time.Time, s settings.Settings, cityHint string) provider.MethodContext {
	hint := cityHint
	if s.IsManual() {
		hint = s.ManualLocation.Label
	}
	tz := date.Location().String()
	if tz == "Local" {
		tz = ""
	}
	return provider.MethodContext{
		MethodID: s.MethodID,
		School:   provider.SchoolHanafi,
		CityHint: hint,
		Timezone: tz,
	}
}

// --------------------------------------------------------------------------
// Cache keys
// --------------------------------------------------------------------------

// LatestKey holds the most recently saved record of any key.
const LatestKey = "timings:latest:v1"

// CacheKey builds the per-day key. Coordinates are rounded to 2 decimals so
// nearby fixes share an entry.
func CacheKey(dateKey string, loc location.Fix, s settings.Settings) string {
	return fmt.Sprintf("timings:%s:%.2f:%.2f:p%s:m%d",
		dateKey, Round2(loc.Lat), Round2(loc.Lon), s.TimingsProvider, s.MethodID)
}

// Round2 rounds to 2 decimals. Negative zero becomes zero.
func Round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}
