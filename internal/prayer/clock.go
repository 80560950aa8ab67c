package prayer

import (
	"fmt"
	"strconv"
	"strings"
)

// NormalizeClock turns provider time strings ("5:10", "05:10:00",
// "05:10 (CET)", "05.10") into zero-padded HH:MM.
func NormalizeClock(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, " ("); i >= 0 {
		s = s[:i]
	}
	s = strings.ReplaceAll(s, ".", ":")
	h, m, err := parseHHMM(s)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:%02d", h, m), nil
}

// parseHHMM accepts H:MM, HH:MM and HH:MM:SS.
func parseHHMM(s string) (int, int, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, fmt.Errorf("invalid clock %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	if len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
