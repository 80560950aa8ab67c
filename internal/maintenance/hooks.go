package maintenance

import (
	"context"
	"fmt"

	"github.com/albapepper/vakit/internal/location"
	"github.com/albapepper/vakit/internal/notifications"
	"github.com/albapepper/vakit/internal/settings"
)

// SettingsSaver persists settings and returns the normalized record.
type SettingsSaver interface {
	Save(ctx context.Context, s settings.Settings) (settings.Settings, error)
}

// ApplySettings saves s and replans against the stored record. Call this
// after any settings edit so alerts never lag behind preferences.
func (r *Runner) ApplySettings(ctx context.Context, saver SettingsSaver, s settings.Settings) (settings.Settings, notifications.Result, error) {
	saved, err := saver.Save(ctx, s)
	if err != nil {
		return s, notifications.Result{}, err
	}
	res, err := r.replanner.Replan(ctx, saved)
	if err != nil {
		return saved, res, fmt.Errorf("replan after settings change: %w", err)
	}

	// New inputs mean new cache keys for the month view.
	if r.months != nil && !res.Skipped {
		if fix, err := location.Resolve(ctx, saved, r.locator); err == nil {
			now := r.now().In(r.zone)
			r.prefetchMonth(ctx, now.Year(), now.Month(), fix, saved)
		}
	}
	return saved, res, nil
}
