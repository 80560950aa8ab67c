package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/albapepper/vakit/internal/errs"
	"github.com/albapepper/vakit/internal/provider"
)

const (
	OverpassURL        = "https://overpass-api.de/api"
	overpassRPM        = 10
	overpassMaxResults = 50
)

// POI is a point of interest returned by Overpass.
type POI struct {
	ID   int64   `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Overpass queries OpenStreetMap for nearby places of worship.
type Overpass struct {
	client *provider.Client
	logger *slog.Logger
}

// NewOverpass creates an Overpass client.
func NewOverpass(baseURL, userAgent string, timeout time.Duration, logger *slog.Logger) *Overpass {
	if baseURL == "" {
		baseURL = OverpassURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Overpass{
		client: provider.NewClient(baseURL, provider.ClientOptions{
			Timeout:           timeout,
			RequestsPerMinute: overpassRPM,
			UserAgent:         userAgent,
		}, logger),
		logger: logger,
	}
}

// Mosques returns Muslim places of worship within radiusMeters of lat/lon.
// Ways and relations are reported at their center.
func (o *Overpass) Mosques(ctx context.Context, lat, lon float64, radiusMeters int) ([]POI, error) {
	q := fmt.Sprintf(
		`[out:json][timeout:25];(nwr["amenity"="place_of_worship"]["religion"="muslim"](around:%d,%f,%f););out center %d;`,
		radiusMeters, lat, lon, overpassMaxResults,
	)
	body, err := o.client.Get(ctx, "/interpreter", url.Values{"data": {q}})
	if err != nil {
		return nil, fmt.Errorf("overpass mosques: %w", err)
	}

	var resp struct {
		Elements []struct {
			Type   string  `json:"type"`
			ID     int64   `json:"id"`
			Lat    float64 `json:"lat"`
			Lon    float64 `json:"lon"`
			Center *struct {
				Lat float64 `json:"lat"`
				Lon float64 `json:"lon"`
			} `json:"center"`
			Tags map[string]string `json:"tags"`
		} `json:"elements"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode overpass: %v", errs.ErrProviderUnavailable, err)
	}

	out := make([]POI, 0, len(resp.Elements))
	for _, el := range resp.Elements {
		p := POI{ID: el.ID, Lat: el.Lat, Lon: el.Lon}
		if el.Center != nil {
			p.Lat, p.Lon = el.Center.Lat, el.Center.Lon
		}
		if p.Lat == 0 && p.Lon == 0 {
			continue
		}
		p.Name = firstNonEmpty(el.Tags, "name", "name:tr", "name:en")
		if p.Name == "" {
			p.Name = "Mosque"
		}
		out = append(out, p)
	}

	o.logger.Debug("Overpass mosques", "lat", lat, "lon", lon, "radius", radiusMeters, "count", len(out))
	return out, nil
}
