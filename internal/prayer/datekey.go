package prayer

import (
	"fmt"
	"time"
)

// dateKeyLayout is the DD-MM-YYYY cache and map key format.
const dateKeyLayout = "02-01-2006"

// DateKey formats t's calendar day in t's own location.
func DateKey(t time.Time) string {
	return t.Format(dateKeyLayout)
}

// ParseDateKey parses a DD-MM-YYYY key as midnight in loc.
func ParseDateKey(key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(dateKeyLayout, key, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date key %q: %w", key, err)
	}
	return t, nil
}

// AddDays returns the calendar day n days after t, anchored at noon so DST
// transitions never shift the date.
func AddDays(t time.Time, n int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+n, 12, 0, 0, 0, t.Location())
}

// DaysInMonth returns the number of days of month in year.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MonthKeys returns every date key of the month in order.
func MonthKeys(year int, month time.Month, loc *time.Location) []string {
	n := DaysInMonth(year, month)
	keys := make([]string, n)
	for d := 1; d <= n; d++ {
		keys[d-1] = DateKey(time.Date(year, month, d, 12, 0, 0, 0, loc))
	}
	return keys
}
