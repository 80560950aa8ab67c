// Package mosque ranks nearby mosques by whether the user can reach them
// before the next prayer, and caches per-location place data.
package mosque

import (
	"math"
	"sort"
	"time"

	"github.com/albapepper/vakit/internal/geo"
	"github.com/albapepper/vakit/internal/location"
	"github.com/albapepper/vakit/internal/prayer"
)

// Buffer is the slack required on top of the ETA.
const Buffer = 10 * time.Minute

// Profile is a travel mode.
type Profile struct {
	Name     string
	SpeedKmh float64
}

var (
	Walk  = Profile{Name: "walk", SpeedKmh: 5}
	Drive = Profile{Name: "drive", SpeedKmh: 30}
)

// ProfileByName returns the named profile, defaulting to Walk.
func ProfileByName(name string) Profile {
	if name == Drive.Name {
		return Drive
	}
	return Walk
}

// Destination is a candidate mosque. DistanceKm of zero means unknown; it
// is then computed from the coordinates.
type Destination struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	DistanceKm float64 `json:"distanceKm,omitempty"`
}

// Option is a ranked destination.
type Option struct {
	Destination
	ETAMinutes int  `json:"etaMinutes"`
	Feasible   bool `json:"feasible"`
}

// ETAMinutes is the whole-minute travel time, rounded up.
func ETAMinutes(distanceKm float64, p Profile) int {
	if distanceKm <= 0 || p.SpeedKmh <= 0 {
		return 0
	}
	return int(math.Ceil(distanceKm * 60 / p.SpeedKmh))
}

// Feasible reports whether eta plus Buffer fits in timeLeft.
func Feasible(etaMinutes int, timeLeft time.Duration) bool {
	return time.Duration(etaMinutes)*time.Minute+Buffer <= timeLeft
}

// Rank scores every destination from origin and sorts feasible ones
// first, then by ETA, then by distance.
func Rank(origin location.Fix, dests []Destination, timeLeft time.Duration, p Profile) []Option {
	out := make([]Option, 0, len(dests))
	for _, d := range dests {
		if d.DistanceKm <= 0 {
			d.DistanceKm = geo.DistanceKm(origin.Lat, origin.Lon, d.Lat, d.Lon)
		}
		eta := ETAMinutes(d.DistanceKm, p)
		out = append(out, Option{Destination: d, ETAMinutes: eta, Feasible: Feasible(eta, timeLeft)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Feasible != b.Feasible {
			return a.Feasible
		}
		if a.ETAMinutes != b.ETAMinutes {
			return a.ETAMinutes < b.ETAMinutes
		}
		return a.DistanceKm < b.DistanceKm
	})
	return out
}

// TimeLeft is the time until the next prayer, using the same scan as the
// next-prayer display. ok is false when neither day has a prayer after now.
func TimeLeft(today, tomorrow *prayer.Timings, now time.Time, loc *time.Location) (prayer.Next, bool) {
	return prayer.NextPrayer(today, tomorrow, now, loc)
}
