package settings

import (
	"encoding/json"
	"math"

	"github.com/albapepper/vakit/internal/prayer"
)

// Decode parses a persisted settings payload. It never fails: every field
// that is missing or malformed takes its default, and the result always has
// exactly one notification record per prayer name.
func Decode(data []byte) Settings {
	s := Default()

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return s
	}

	var provider Provider
	if decodeField(raw, "timingsProvider", &provider) && provider.Valid() {
		s.TimingsProvider = provider
	}

	var methodID float64
	if decodeField(raw, "methodId", &methodID) && methodID >= 0 && methodID == math.Trunc(methodID) {
		s.MethodID = int(methodID)
		s.MethodName = MethodName(s.MethodID)
	}
	var methodName string
	if decodeField(raw, "methodName", &methodName) && methodName != "" {
		s.MethodName = methodName
	}

	var mode LocationMode
	if decodeField(raw, "locationMode", &mode) && (mode == LocationGPS || mode == LocationManual) {
		s.LocationMode = mode
	}

	var manual ManualLocation
	if decodeField(raw, "manualLocation", &manual) && validCoords(manual.Lat, manual.Lon) {
		s.ManualLocation = &manual
	}
	if s.LocationMode == LocationManual && s.ManualLocation == nil {
		s.LocationMode = LocationGPS
	}

	var notes map[string]json.RawMessage
	if decodeField(raw, "notifications", &notes) {
		for _, n := range prayer.Names {
			if entry, ok := notes[string(n)]; ok {
				s.Notifications[n] = decodeNotification(n, entry)
			}
		}
	}

	return s
}

func decodeNotification(n prayer.Name, data json.RawMessage) Notification {
	out := DefaultNotification(n)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return out
	}

	var b bool
	if decodeField(raw, "enabled", &b) {
		out.Enabled = b
	}
	if decodeField(raw, "playSound", &b) {
		out.PlaySound = b
	}
	if decodeField(raw, "vibration", &b) {
		out.Vibration = b
	}

	var minutes float64
	if decodeField(raw, "minutesBefore", &minutes) && ValidMinutesBefore(int(minutes)) && minutes == math.Trunc(minutes) {
		out.MinutesBefore = int(minutes)
	}

	var tone string
	if decodeField(raw, "tone", &tone) && tone != "" {
		out.Tone = tone
	}

	var volume float64
	if decodeField(raw, "volume", &volume) && !math.IsNaN(volume) {
		out.Volume = int(math.Round(math.Max(0, math.Min(100, volume))))
	}

	return out
}

// decodeField unmarshals raw[key] into v, reporting success.
func decodeField(raw map[string]json.RawMessage, key string, v any) bool {
	data, ok := raw[key]
	if !ok || string(data) == "null" {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

func validCoords(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180 && !(lat == 0 && lon == 0)
}
