// Package settings holds the user's provider, method, location and
// per-prayer notification preferences, and persists them under settings:v1.
package settings

import (
	"github.com/albapepper/vakit/internal/prayer"
)

// Provider selects the timings source.
type Provider string

const (
	ProviderAladhan Provider = "aladhan"
	ProviderDiyanet Provider = "diyanet"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	return p == ProviderAladhan || p == ProviderDiyanet
}

// LocationMode selects where coordinates come from.
type LocationMode string

const (
	LocationGPS    LocationMode = "gps"
	LocationManual LocationMode = "manual"
)

// AsrSchool is fixed to Hanafi in this domain.
const AsrSchool = "hanafi"

// AllowedMinutesBefore lists the reminder offsets a user can pick.
var AllowedMinutesBefore = []int{0, 5, 10, 15, 30}

// ManualLocation is a user-picked place.
type ManualLocation struct {
	Query string  `json:"query"`
	Label string  `json:"label"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
}

// Notification is the reminder preference for one prayer.
type Notification struct {
	Enabled       bool   `json:"enabled"`
	MinutesBefore int    `json:"minutesBefore"`
	PlaySound     bool   `json:"playSound"`
	Tone          string `json:"tone"`
	Volume        int    `json:"volume"`
	Vibration     bool   `json:"vibration"`
}

// Settings is the full persisted preference record.
type Settings struct {
	TimingsProvider Provider                     `json:"timingsProvider"`
	MethodID        int                          `json:"methodId"`
	MethodName      string                       `json:"methodName"`
	AsrSchool       string                       `json:"asrSchool"`
	LocationMode    LocationMode                 `json:"locationMode"`
	ManualLocation  *ManualLocation              `json:"manualLocation,omitempty"`
	Notifications   map[prayer.Name]Notification `json:"notifications"`
}

// Default method: Diyanet İşleri Başkanlığı, Turkey.
const (
	DefaultMethodID = 13
	DefaultTone     = "default"
	DefaultVolume   = 80
	DefaultMinutes  = 10
)

// DefaultNotification returns the reminder defaults for n. Sunrise is off.
func DefaultNotification(n prayer.Name) Notification {
	return Notification{
		Enabled:       n != prayer.Sunrise,
		MinutesBefore: DefaultMinutes,
		PlaySound:     true,
		Tone:          DefaultTone,
		Volume:        DefaultVolume,
		Vibration:     true,
	}
}

// Default returns safe first-run settings.
func Default() Settings {
	s := Settings{
		TimingsProvider: ProviderAladhan,
		MethodID:        DefaultMethodID,
		MethodName:      MethodName(DefaultMethodID),
		AsrSchool:       AsrSchool,
		LocationMode:    LocationGPS,
		Notifications:   make(map[prayer.Name]Notification, len(prayer.Names)),
	}
	for _, n := range prayer.Names {
		s.Notifications[n] = DefaultNotification(n)
	}
	return s
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := s
	if s.ManualLocation != nil {
		m := *s.ManualLocation
		out.ManualLocation = &m
	}
	out.Notifications = make(map[prayer.Name]Notification, len(s.Notifications))
	for k, v := range s.Notifications {
		out.Notifications[k] = v
	}
	return out
}

// Notification returns the preference for n, falling back to the default.
func (s Settings) Notification(n prayer.Name) Notification {
	if v, ok := s.Notifications[n]; ok {
		return v
	}
	return DefaultNotification(n)
}

// IsManual reports whether a usable manual location is selected.
func (s Settings) IsManual() bool {
	return s.LocationMode == LocationManual && s.ManualLocation != nil
}

// ValidMinutesBefore reports whether m is an allowed reminder offset.
func ValidMinutesBefore(m int) bool {
	for _, v := range AllowedMinutesBefore {
		if v == m {
			return true
		}
	}
	return false
}
