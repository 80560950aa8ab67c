// Package prayer defines the canonical daily timings shape every provider
// normalizes into, plus the date-key and clock helpers shared by the cache,
// the replanner and the next-prayer scan.
package prayer

import (
	"fmt"
	"time"

	"github.com/albapepper/vakit/internal/errs"
)

// Name is one of the six daily time slots.
type Name string

const (
	Fajr    Name = "Fajr"
	Sunrise Name = "Sunrise"
	Dhuhr   Name = "Dhuhr"
	Asr     Name = "Asr"
	Maghrib Name = "Maghrib"
	Isha    Name = "Isha"
)

// Names is the fixed daily order.
var Names = []Name{Fajr, Sunrise, Dhuhr, Asr, Maghrib, Isha}

// Valid reports whether n is one of Names.
func (n Name) Valid() bool {
	for _, v := range Names {
		if v == n {
			return true
		}
	}
	return false
}

// IsPrayer reports whether n is an obligatory prayer. Sunrise marks the end of
// Fajr and is never a "next prayer".
func (n Name) IsPrayer() bool {
	return n.Valid() && n != Sunrise
}

// Timings is one calendar day of times for a location.
type Timings struct {
	DateKey  string          `json:"dateKey"`
	Timezone string          `json:"timezone"`
	Times    map[Name]string `json:"times"`
}

// Validate checks the date key and that all six slots hold HH:MM values.
func (t Timings) Validate() error {
	if _, err := ParseDateKey(t.DateKey, time.UTC); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrDataIntegrity, err)
	}
	for _, n := range Names {
		v, ok := t.Times[n]
		if !ok {
			return fmt.Errorf("%w: missing %s for %s", errs.ErrDataIntegrity, n, t.DateKey)
		}
		if _, _, err := parseHHMM(v); err != nil || len(v) != 5 {
			return fmt.Errorf("%w: invalid %s time %q for %s", errs.ErrDataIntegrity, n, v, t.DateKey)
		}
	}
	return nil
}

// Location returns the timings' zone, or fallback when the name is empty or
// unknown to the tz database.
func (t Timings) Location(fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.Local
	}
	if t.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}

// At returns the absolute instant of slot n on the timings' day.
func (t Timings) At(n Name, fallback *time.Location) (time.Time, error) {
	loc := t.Location(fallback)
	day, err := ParseDateKey(t.DateKey, loc)
	if err != nil {
		return time.Time{}, err
	}
	raw, ok := t.Times[n]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: missing %s for %s", errs.ErrDataIntegrity, n, t.DateKey)
	}
	h, m, err := parseHHMM(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", errs.ErrDataIntegrity, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc), nil
}

// Fingerprint joins the six times in order. Two days with equal fingerprints
// carry identical schedules.
func (t Timings) Fingerprint() string {
	out := make([]byte, 0, 6*6)
	for i, n := range Names {
		if i > 0 {
			out = append(out, '|')
		}
		out = append(out, t.Times[n]...)
	}
	return string(out)
}
