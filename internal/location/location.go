// Package location resolves the coordinates the resolver and replanner work
// with, either from the user's manual pick or from a device locator.
package location

import (
	"context"
	"fmt"

	"github.com/albapepper/vakit/internal/errs"
	"github.com/albapepper/vakit/internal/settings"
)

// Fix is a resolved position with a best-effort label.
type Fix struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Label string  `json:"label,omitempty"`
}

// Locator reports the device position. Implementations return an error
// wrapping errs.ErrPermissionDenied when the user refused access.
type Locator interface {
	Current(ctx context.Context) (Fix, error)
}

// Static is a fixed-position locator (configured coordinates standing in for GPS).
type Static struct {
	fix Fix
	ok  bool
}

// NewStatic returns a locator for the given fix. With ok=false every call
// reports permission denied.
func NewStatic(fix Fix, ok bool) *Static {
	return &Static{fix: fix, ok: ok}
}

// Current returns the configured fix.
func (s *Static) Current(context.Context) (Fix, error) {
	if !s.ok {
		return Fix{}, fmt.Errorf("no device location configured: %w", errs.ErrPermissionDenied)
	}
	return s.fix, nil
}

// Resolve picks the manual location in manual mode, and asks the locator
// otherwise.
func Resolve(ctx context.Context, s settings.Settings, locator Locator) (Fix, error) {
	if s.IsManual() {
		m := s.ManualLocation
		return Fix{Lat: m.Lat, Lon: m.Lon, Label: m.Label}, nil
	}
	if locator == nil {
		return Fix{}, fmt.Errorf("gps mode without locator: %w", errs.ErrPermissionDenied)
	}
	fix, err := locator.Current(ctx)
	if err != nil {
		return Fix{}, fmt.Errorf("locate device: %w", err)
	}
	return fix, nil
}
