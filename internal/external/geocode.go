// Package external provides clients for third-party map APIs: Nominatim
// reverse geocoding and Overpass place lookups.
package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/albapepper/vakit/internal/errs"
	"github.com/albapepper/vakit/internal/provider"
)

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

const (
	NominatimBaseURL = "https://nominatim.openstreetmap.org"
	// Nominatim's usage policy allows one request per second.
	nominatimRPM      = 60
	geocodeCacheTTL   = 24 * time.Hour
	geocodeCacheLimit = 256
)

// ---------------------------------------------------------------------------
// Place: normalized reverse-geocode result
// ---------------------------------------------------------------------------

// Place is the administrative breakdown of a coordinate.
type Place struct {
	City        string `json:"city"`
	District    string `json:"district"`
	State       string `json:"state"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	DisplayName string `json:"display_name"`
}

// Label is a short human label, "City, Country" when both are known.
func (p Place) Label() string {
	switch {
	case p.City != "" && p.Country != "":
		return p.City + ", " + p.Country
	case p.City != "":
		return p.City
	case p.State != "":
		return p.State
	default:
		return p.DisplayName
	}
}

// ---------------------------------------------------------------------------
// Geocoder: Nominatim reverse client with an in-memory memo
// ---------------------------------------------------------------------------

// Geocoder resolves coordinates to places.
type Geocoder struct {
	client *provider.Client
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]cachedPlace
	now   func() time.Time
}

type cachedPlace struct {
	place Place
	at    time.Time
}

// NewGeocoder creates a Nominatim client. userAgent is required by the
// Nominatim usage policy.
func NewGeocoder(baseURL, userAgent string, timeout time.Duration, logger *slog.Logger) *Geocoder {
	if baseURL == "" {
		baseURL = NominatimBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Geocoder{
		client: provider.NewClient(baseURL, provider.ClientOptions{
			Timeout:           timeout,
			RequestsPerMinute: nominatimRPM,
			UserAgent:         userAgent,
		}, logger),
		logger: logger,
		cache:  make(map[string]cachedPlace),
		now:    time.Now,
	}
}

// Reverse returns the place containing lat/lon. Results are memoized per
// coordinate rounded to 3 decimals (~100 m).
func (g *Geocoder) Reverse(ctx context.Context, lat, lon float64) (Place, error) {
	key := fmt.Sprintf("%.3f:%.3f", lat, lon)

	g.mu.RLock()
	if c, ok := g.cache[key]; ok && g.now().Sub(c.at) < geocodeCacheTTL {
		g.mu.RUnlock()
		return c.place, nil
	}
	g.mu.RUnlock()

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	params.Set("format", "jsonv2")
	params.Set("zoom", "10")
	params.Set("addressdetails", "1")
	params.Set("accept-language", "tr,en")

	body, err := g.client.Get(ctx, "/reverse", params)
	if err != nil {
		return Place{}, fmt.Errorf("reverse geocode: %w", err)
	}

	var resp struct {
		Error       string            `json:"error"`
		DisplayName string            `json:"display_name"`
		Address     map[string]string `json:"address"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Place{}, fmt.Errorf("%w: decode reverse geocode: %v", errs.ErrProviderUnavailable, err)
	}
	if resp.Error != "" {
		return Place{}, fmt.Errorf("%w: reverse geocode: %s", errs.ErrNotFound, resp.Error)
	}

	place := Place{
		City:        firstNonEmpty(resp.Address, "city", "town", "municipality", "village", "province"),
		District:    firstNonEmpty(resp.Address, "city_district", "district", "county", "suburb"),
		State:       firstNonEmpty(resp.Address, "province", "state", "region"),
		Country:     resp.Address["country"],
		CountryCode: resp.Address["country_code"],
		DisplayName: resp.DisplayName,
	}

	g.mu.Lock()
	if len(g.cache) >= geocodeCacheLimit {
		g.cache = make(map[string]cachedPlace)
	}
	g.cache[key] = cachedPlace{place: place, at: g.now()}
	g.mu.Unlock()

	g.logger.Debug("Reverse geocoded", "lat", lat, "lon", lon, "city", place.City, "country", place.CountryCode)
	return place, nil
}

func firstNonEmpty(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}
