// Package provider defines the contract every timings source implements.
// Adapters normalize their raw payloads into prayer.Timings; the resolver,
// prefetcher and replanner never see provider-specific shapes.
//
// Adding a new provider means implementing TimingsProvider and registering it.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/albapepper/vakit/internal/prayer"
	"github.com/albapepper/vakit/internal/settings"
)

// SchoolHanafi is the Aladhan school parameter for the Hanafi Asr shadow.
const SchoolHanafi = 1

// MethodContext carries the calculation inputs alongside the coordinates.
type MethodContext struct {
	MethodID int
	School   int
	// CityHint is a human label used by providers that resolve administrative cities.
	CityHint string
	// Timezone is the user's zone, used when a provider omits one.
	Timezone string
}

// TimingsProvider fetches one day of timings. Adapters are pure with respect
// to the Cache Store.
type TimingsProvider interface {
	GetTimings(ctx context.Context, date time.Time, lat, lon float64, mc MethodContext) (prayer.Timings, error)
}

// MonthlyProvider is implemented by providers that can return a whole month
// in one call. Keys are date keys.
type MonthlyProvider interface {
	GetMonthlyTimings(ctx context.Context, year int, month time.Month, lat, lon float64, mc MethodContext) (map[string]prayer.Timings, error)
}

// Registry selects a provider by the settings discriminant.
type Registry map[settings.Provider]TimingsProvider

// For returns the provider for id.
func (r Registry) For(id settings.Provider) (TimingsProvider, error) {
	p, ok := r[id]
	if !ok || p == nil {
		return nil, fmt.Errorf("timings provider %q not configured", id)
	}
	return p, nil
}

// BuildTimings normalizes a raw name→clock map into validated Timings.
func BuildTimings(dateKey, timezone string, raw map[prayer.Name]string) (prayer.Timings, error) {
	t := prayer.Timings{
		DateKey:  dateKey,
		Timezone: timezone,
		Times:    make(map[prayer.Name]string, len(prayer.Names)),
	}
	for _, n := range prayer.Names {
		v, ok := raw[n]
		if !ok || v == "" {
			continue
		}
		clock, err := prayer.NormalizeClock(v)
		if err != nil {
			continue
		}
		t.Times[n] = clock
	}
	if err := t.Validate(); err != nil {
		return prayer.Timings{}, err
	}
	return t, nil
}
