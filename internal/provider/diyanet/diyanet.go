// Package diyanet adapts a proxy in front of the Diyanet (Turkish Presidency
// of Religious Affairs) prayer-time service.
//
// Diyanet publishes official timings per administrative city rather than per
// coordinate, so every request first resolves a city id:
//
//  1. a forced id from configuration
//  2. the per-coordinate memo
//  3. the proxy's own /geocode endpoint
//  4. reverse geocoding plus fuzzy matching against the proxy's /cities list
package diyanet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/albapepper/vakit/internal/errs"
	"github.com/albapepper/vakit/internal/external"
	"github.com/albapepper/vakit/internal/prayer"
	"github.com/albapepper/vakit/internal/provider"
)

// MethodID is the settings method id that denotes Diyanet timings.
const MethodID = 13

// ReverseGeocoder resolves coordinates to an administrative place.
type ReverseGeocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (external.Place, error)
}

// Options configures a Handler.
type Options struct {
	BaseURL string
	// ForceCityID bypasses city resolution entirely.
	ForceCityID string
	Client      provider.ClientOptions
	Geocoder    ReverseGeocoder
}

// Handler fetches Diyanet timings through the proxy.
type Handler struct {
	client      *provider.Client
	geocoder    ReverseGeocoder
	forceCityID string
	logger      *slog.Logger

	cities cityList

	mu     sync.RWMutex
	memo   map[string]string // coord key → city id
	labels map[string]string // city id → label
}

// NewHandler creates a Diyanet handler. A nil geocoder disables the fuzzy
// matching fallback.
func NewHandler(opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		client:      provider.NewClient(opts.BaseURL, opts.Client, logger),
		geocoder:    opts.Geocoder,
		forceCityID: opts.ForceCityID,
		logger:      logger,
		memo:        make(map[string]string),
		labels:      make(map[string]string),
	}
}

// ---------------------------------------------------------------------------
// Timings
// ---------------------------------------------------------------------------

// GetTimings fetches one day for the city containing lat/lon.
func (h *Handler) GetTimings(ctx context.Context, date time.Time, lat, lon float64, mc provider.MethodContext) (prayer.Timings, error) {
	cityID, err := h.ResolveCity(ctx, lat, lon, mc.CityHint)
	if err != nil {
		return prayer.Timings{}, err
	}

	dateKey := prayer.DateKey(date)
	params := url.Values{
		"cityId": {cityID},
		"date":   {date.Format("2006-01-02")},
	}
	body, err := h.client.Get(ctx, "/prayertimes/daily", params)
	if err != nil {
		h.forgetOnNotFound(err, lat, lon)
		return prayer.Timings{}, fmt.Errorf("fetch diyanet daily city=%s %s: %w", cityID, dateKey, err)
	}

	rows, err := decodeRows(body)
	if err != nil {
		return prayer.Timings{}, err
	}
	return selectDay(rows, dateKey, mc.Timezone)
}

// GetMonthlyTimings fetches a whole month for the city containing lat/lon.
func (h *Handler) GetMonthlyTimings(ctx context.Context, year int, month time.Month, lat, lon float64, mc provider.MethodContext) (map[string]prayer.Timings, error) {
	cityID, err := h.ResolveCity(ctx, lat, lon, mc.CityHint)
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"cityId": {cityID},
		"year":   {strconv.Itoa(year)},
		"month":  {strconv.Itoa(int(month))},
	}
	body, err := h.client.Get(ctx, "/prayertimes/monthly", params)
	if err != nil {
		h.forgetOnNotFound(err, lat, lon)
		return nil, fmt.Errorf("fetch diyanet monthly city=%s %d-%02d: %w", cityID, year, int(month), err)
	}

	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}

	out := make(map[string]prayer.Timings, len(rows))
	for _, row := range rows {
		key, ok := rowDateKey(row)
		if !ok {
			continue
		}
		t, err := rowTimings(row, key, mc.Timezone)
		if err != nil {
			h.logger.Warn("Skipping invalid diyanet row", "date", key, "error", err)
			continue
		}
		out[key] = t
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: diyanet month %d-%02d has no valid rows", errs.ErrDataIntegrity, year, int(month))
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// City resolution
// ---------------------------------------------------------------------------

// ResolveCity returns the proxy city id for lat/lon.
func (h *Handler) ResolveCity(ctx context.Context, lat, lon float64, hint string) (string, error) {
	if h.forceCityID != "" {
		return h.forceCityID, nil
	}

	key := coordKey(lat, lon)
	h.mu.RLock()
	id, ok := h.memo[key]
	h.mu.RUnlock()
	if ok {
		return id, nil
	}

	city, err := h.geocodeViaProxy(ctx, lat, lon)
	if err != nil {
		h.logger.Debug("Proxy geocode unavailable, falling back to city matching", "error", err)
		city, err = h.matchCity(ctx, lat, lon, hint)
		if err != nil {
			return "", err
		}
	}

	h.mu.Lock()
	h.memo[key] = city.ID
	h.labels[city.ID] = city.Label()
	h.mu.Unlock()

	h.logger.Info("Resolved diyanet city", "lat", lat, "lon", lon, "city_id", city.ID, "label", city.Label())
	return city.ID, nil
}

// CityLabel returns the label of a previously resolved city id.
func (h *Handler) CityLabel(id string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	l, ok := h.labels[id]
	return l, ok
}

// InvalidateCities drops the cached city list and every memoized
// resolution. The next request reloads both.
func (h *Handler) InvalidateCities() {
	h.cities.invalidate()
	h.mu.Lock()
	h.memo = make(map[string]string)
	h.labels = make(map[string]string)
	h.mu.Unlock()
}

func (h *Handler) geocodeViaProxy(ctx context.Context, lat, lon float64) (City, error) {
	params := url.Values{
		"lat": {strconv.FormatFloat(lat, 'f', 6, 64)},
		"lon": {strconv.FormatFloat(lon, 'f', 6, 64)},
	}
	body, err := h.client.Get(ctx, "/geocode", params)
	if err != nil {
		return City{}, err
	}
	rows, err := decodeRows(body)
	if err != nil {
		return City{}, err
	}
	for _, row := range rows {
		if c, ok := cityFromRow(row); ok {
			return c, nil
		}
	}
	return City{}, fmt.Errorf("%w: proxy geocode returned no city", errs.ErrNotFound)
}

func (h *Handler) matchCity(ctx context.Context, lat, lon float64, hint string) (City, error) {
	if h.geocoder == nil {
		return City{}, fmt.Errorf("%w: no diyanet city for %.4f,%.4f", errs.ErrNotFound, lat, lon)
	}
	place, err := h.geocoder.Reverse(ctx, lat, lon)
	if err != nil {
		return City{}, fmt.Errorf("resolve diyanet city: %w", err)
	}
	cities, err := h.cities.get(ctx, h.loadCities)
	if err != nil {
		return City{}, err
	}
	best, ok := BestCity(cities, place, hint, lat, lon)
	if !ok {
		return City{}, fmt.Errorf("%w: no diyanet city matches %q", errs.ErrNotFound, place.Label())
	}
	return best, nil
}

func (h *Handler) loadCities(ctx context.Context) ([]City, error) {
	body, err := h.client.Get(ctx, "/cities", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch diyanet cities: %w", err)
	}
	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	cities := make([]City, 0, len(rows))
	for _, row := range rows {
		if c, ok := cityFromRow(row); ok {
			cities = append(cities, c)
		}
	}
	h.logger.Info("Loaded diyanet city list", "count", len(cities))
	return cities, nil
}

// forgetOnNotFound drops a memoized resolution when the proxy no longer
// knows the city id.
func (h *Handler) forgetOnNotFound(err error, lat, lon float64) {
	var se *provider.StatusError
	if h.forceCityID != "" || !errors.As(err, &se) || se.Code != http.StatusNotFound {
		return
	}
	h.mu.Lock()
	delete(h.memo, coordKey(lat, lon))
	h.mu.Unlock()
	h.cities.invalidate()
}

func coordKey(lat, lon float64) string {
	return fmt.Sprintf("%.2f:%.2f", lat, lon)
}

// ---------------------------------------------------------------------------
// Row parsing
// ---------------------------------------------------------------------------

var fieldVariants = map[prayer.Name][]string{
	prayer.Fajr:    {"imsak", "fajr", "İmsak"},
	prayer.Sunrise: {"gunes", "sunrise", "Güneş"},
	prayer.Dhuhr:   {"ogle", "dhuhr", "Öğle"},
	prayer.Asr:     {"ikindi", "asr", "İkindi"},
	prayer.Maghrib: {"aksam", "maghrib", "Akşam"},
	prayer.Isha:    {"yatsi", "isha", "Yatsı"},
}

var dateVariants = []string{"gregorianDateShort", "miladiTarihKisa", "date", "gregorianDate"}

var rowDateLayouts = []string{
	"02.01.2006",
	"02-01-2006",
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02/01/2006",
}

// decodeRows accepts a bare array, a single object, or either wrapped in a
// {"data": ...} envelope.
func decodeRows(body []byte) ([]map[string]interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("%w: diyanet response is not JSON: %s", errs.ErrProviderUnavailable, provider.Truncate(body, 80))
	}
	if obj, ok := v.(map[string]interface{}); ok {
		if data, ok := obj["data"]; ok {
			v = data
		}
	}
	switch val := v.(type) {
	case []interface{}:
		rows := make([]map[string]interface{}, 0, len(val))
		for _, item := range val {
			if m, ok := item.(map[string]interface{}); ok {
				rows = append(rows, m)
			}
		}
		return rows, nil
	case map[string]interface{}:
		return []map[string]interface{}{val}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected diyanet payload shape", errs.ErrProviderUnavailable)
	}
}

func rowDateKey(row map[string]interface{}) (string, bool) {
	raw, ok := provider.LookupField(row, dateVariants...)
	if !ok {
		return "", false
	}
	for _, layout := range rowDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return prayer.DateKey(t), true
		}
	}
	return "", false
}

func rowTimings(row map[string]interface{}, dateKey, tz string) (prayer.Timings, error) {
	raw := make(map[prayer.Name]string, len(fieldVariants))
	for name, variants := range fieldVariants {
		if v, ok := provider.LookupField(row, variants...); ok {
			raw[name] = v
		}
	}
	if zone, ok := provider.LookupField(row, "timezone", "tz"); ok {
		tz = zone
	}
	return provider.BuildTimings(dateKey, tz, raw)
}

// selectDay returns the row for dateKey. If none matches, the first valid
// row without a parseable date is taken as the requested day.
func selectDay(rows []map[string]interface{}, dateKey, tz string) (prayer.Timings, error) {
	var undated map[string]interface{}
	for _, row := range rows {
		key, ok := rowDateKey(row)
		if !ok {
			if undated == nil {
				if _, err := rowTimings(row, dateKey, tz); err == nil {
					undated = row
				}
			}
			continue
		}
		if key == dateKey {
			return rowTimings(row, dateKey, tz)
		}
	}
	if undated != nil {
		return rowTimings(undated, dateKey, tz)
	}
	return prayer.Timings{}, fmt.Errorf("%w: diyanet has no row for %s", errs.ErrDataIntegrity, dateKey)
}
