package prayer

import (
	"fmt"
	"time"
)

// Next is the upcoming prayer relative to a reference instant.
type Next struct {
	Name     Name
	DateKey  string
	At       time.Time
	TimeLeft time.Duration
	Tomorrow bool
}

// NextPrayer scans today's prayers forward from now and rolls over into
// tomorrow's Fajr once Isha has passed. tomorrow may be nil; the result is
// then false after Isha.
func NextPrayer(today, tomorrow *Timings, now time.Time, loc *time.Location) (Next, bool) {
	if today != nil {
		for _, n := range Names {
			if !n.IsPrayer() {
				continue
			}
			at, err := today.At(n, loc)
			if err != nil {
				continue
			}
			if at.After(now) {
				return Next{Name: n, DateKey: today.DateKey, At: at, TimeLeft: at.Sub(now)}, true
			}
		}
	}
	if tomorrow != nil {
		at, err := tomorrow.At(Fajr, loc)
		if err == nil && at.After(now) {
			return Next{Name: Fajr, DateKey: tomorrow.DateKey, At: at, TimeLeft: at.Sub(now), Tomorrow: true}, true
		}
	}
	return Next{}, false
}

// FormatCountdown renders d as HH:MM:SS, truncating to whole seconds.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}
