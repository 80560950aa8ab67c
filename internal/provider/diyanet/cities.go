package diyanet

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/albapepper/vakit/internal/external"
	"github.com/albapepper/vakit/internal/geo"
	"github.com/albapepper/vakit/internal/provider"
)

// City is one entry of the proxy's administrative city list.
type City struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	State   string  `json:"state,omitempty"`
	Country string  `json:"country,omitempty"`
	Lat     float64 `json:"lat,omitempty"`
	Lon     float64 `json:"lon,omitempty"`
}

// Label is "Name, Country" when the country is known.
func (c City) Label() string {
	if c.Country == "" {
		return c.Name
	}
	return c.Name + ", " + c.Country
}

func cityFromRow(row map[string]interface{}) (City, bool) {
	id, ok := provider.LookupField(row, "id", "cityId", "_id", "ilceId", "sehirId")
	if !ok {
		return City{}, false
	}
	name, ok := provider.LookupField(row, "name", "city", "ilceAdi", "sehirAdi", "cityName")
	if !ok {
		return City{}, false
	}
	c := City{ID: id, Name: name}
	c.State, _ = provider.LookupField(row, "state", "province", "sehir", "il")
	c.Country, _ = provider.LookupField(row, "country", "ulke", "ulkeAdi")
	if s, ok := provider.LookupField(row, "lat", "latitude", "enlem"); ok {
		c.Lat, _ = strconv.ParseFloat(s, 64)
	}
	if s, ok := provider.LookupField(row, "lon", "lng", "longitude", "boylam"); ok {
		c.Lon, _ = strconv.ParseFloat(s, 64)
	}
	return c, true
}

// ---------------------------------------------------------------------------
// Fuzzy scoring
// ---------------------------------------------------------------------------

// Score rates how well c matches a reverse-geocoded place. Higher is better;
// a non-positive score is no match. lat/lon break ties between same-name
// cities when the list carries coordinates.
func Score(c City, place external.Place, hint string, lat, lon float64) float64 {
	name := provider.Fold(c.Name)
	if name == "" {
		return 0
	}

	var score float64
	switch name {
	case provider.Fold(place.City):
		score += 100
	case provider.Fold(place.District):
		score += 90
	case provider.Fold(place.State):
		score += 60
	default:
		for _, candidate := range []string{place.City, place.District, place.State} {
			f := provider.Fold(candidate)
			if f != "" && (containsWord(f, name) || containsWord(name, f)) {
				score += 40
				break
			}
		}
	}

	if h := provider.Fold(hint); h != "" {
		switch {
		case h == name:
			score += 80
		case containsWord(h, name):
			score += 30
		}
	}

	if score <= 0 {
		return 0
	}
	if c.State != "" && provider.Fold(c.State) == provider.Fold(place.State) {
		score += 10
	}

	if c.Country != "" && (place.Country != "" || place.CountryCode != "") {
		cc := provider.Fold(c.Country)
		if cc == provider.Fold(place.Country) || cc == provider.Fold(place.CountryCode) {
			score += 20
		} else {
			score -= 50
		}
	}

	if c.Lat != 0 || c.Lon != 0 {
		score -= geo.DistanceKm(lat, lon, c.Lat, c.Lon) / 100
	}
	return score
}

// BestCity picks the highest scoring city. ok is false when nothing scores
// above zero.
func BestCity(cities []City, place external.Place, hint string, lat, lon float64) (City, bool) {
	var (
		best      City
		bestScore float64
	)
	for _, c := range cities {
		s := Score(c, place, hint, lat, lon)
		if s > bestScore {
			best, bestScore = c, s
		}
	}
	return best, bestScore > 0
}

func containsWord(haystack, needle string) bool {
	if len(needle) < 3 {
		return false
	}
	return strings.Contains(haystack, needle)
}

// ---------------------------------------------------------------------------
// City list holder
// ---------------------------------------------------------------------------

// cityList loads the proxy city list on first use and keeps it until
// invalidated. Concurrent first callers share one fetch.
type cityList struct {
	mu     sync.Mutex
	cities []City
	loaded bool
}

func (l *cityList) get(ctx context.Context, load func(context.Context) ([]City, error)) ([]City, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded {
		return l.cities, nil
	}
	cities, err := load(ctx)
	if err != nil {
		return nil, err
	}
	l.cities, l.loaded = cities, true
	return cities, nil
}

func (l *cityList) invalidate() {
	l.mu.Lock()
	l.cities, l.loaded = nil, false
	l.mu.Unlock()
}
