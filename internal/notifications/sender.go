package notifications

import (
	"context"
	"log/slog"
)

// Deliverer presents a fired alert to the user.
type Deliverer interface {
	Deliver(ctx context.Context, a Alert) error
}

// LogDeliverer writes fired alerts to the log. Nil-safe: a nil
// *LogDeliverer drops every alert.
type LogDeliverer struct {
	logger *slog.Logger
}

// NewLogDeliverer creates a log deliverer.
func NewLogDeliverer(logger *slog.Logger) *LogDeliverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDeliverer{logger: logger}
}

// Deliver logs the alert.
func (d *LogDeliverer) Deliver(ctx context.Context, a Alert) error {
	if d == nil {
		return nil
	}
	d.logger.Info("Prayer alert",
		"title", a.Title,
		"body", a.Body,
		"prayer", a.Data["prayer"],
		"intent", a.Data["intent"],
		"sound", a.Sound,
		"volume", a.Volume,
		"vibrate", a.Vibrate)
	return nil
}
