package notifications

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/albapepper/vakit/internal/location"
	"github.com/albapepper/vakit/internal/prayer"
	"github.com/albapepper/vakit/internal/settings"
)

// Signature hashes every input that changes the schedule: coordinates at 4
// decimals, provider, method, location mode, the manual location, and each
// prayer's enabled flag and offset. Sound preferences are excluded; they
// affect alert content, not which alerts exist.
func Signature(fix location.Fix, s settings.Settings) string {
	fields := map[string]string{
		"lat":      coord4(fix.Lat),
		"lon":      coord4(fix.Lon),
		"provider": string(s.TimingsProvider),
		"method":   strconv.Itoa(s.MethodID),
		"mode":     string(s.LocationMode),
	}
	if m := s.ManualLocation; m != nil {
		fields["manual.label"] = m.Label
		fields["manual.lat"] = coord4(m.Lat)
		fields["manual.lon"] = coord4(m.Lon)
	}
	for _, n := range prayer.Names {
		pref := s.Notification(n)
		fields["n."+string(n)+".enabled"] = strconv.FormatBool(pref.Enabled)
		fields["n."+string(n)+".minutes"] = strconv.Itoa(pref.MinutesBefore)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func coord4(v float64) string {
	r := math.Round(v*1e4) / 1e4
	if r == 0 {
		r = 0 // drop negative zero
	}
	return strconv.FormatFloat(r, 'f', 4, 64)
}
