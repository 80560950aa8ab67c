// Package notifications turns resolved timings and per-prayer preferences
// into scheduled local alerts.
//
// Pipeline: permission gate → location → signature check → cancel all →
// resolve today+tomorrow → compose and schedule → commit.
// Every replan runs through a single FIFO Queue, so no two replans'
// cancel/schedule phases interleave.
package notifications

import (
	"fmt"
	"time"

	"github.com/albapepper/vakit/internal/prayer"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Debounce is the window in which an identical signature is not replanned.
const Debounce = 10 * time.Second

// Intent distinguishes the reminder before a prayer from the one at it.
type Intent string

const (
	IntentOffset Intent = "offset"
	IntentAtTime Intent = "at_time"
)

// Skip reasons reported in Result.Reason.
const (
	ReasonPermission = "notifications_denied"
	ReasonNoLocation = "location_denied"
	ReasonUnchanged  = "unchanged"
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Alert is a one-shot local notification.
type Alert struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	Sound     string            `json:"sound,omitempty"`
	Volume    int               `json:"volume"`
	Vibrate   bool              `json:"vibrate"`
	TriggerAt time.Time         `json:"triggerAt"`
}

// DedupeKey identifies an alert within one replan pass.
type DedupeKey struct {
	DateKey        string
	Prayer         prayer.Name
	Intent         Intent
	MinutesBefore  int
	TriggerEpochMs int64
}

// Result describes one replan invocation.
type Result struct {
	Skipped   bool   `json:"skipped"`
	Reason    string `json:"reason,omitempty"`
	Cancelled bool   `json:"cancelled"`
	Scheduled int    `json:"scheduled"`
	Dropped   int    `json:"dropped"`
	Signature string `json:"signature,omitempty"`
}

// Summary returns a one-line log summary.
func (r Result) Summary() string {
	if r.Skipped {
		return fmt.Sprintf("skipped reason=%s", r.Reason)
	}
	sig := r.Signature
	if len(sig) > 12 {
		sig = sig[:12]
	}
	return fmt.Sprintf("cancelled=%v scheduled=%d dropped=%d sig=%s",
		r.Cancelled, r.Scheduled, r.Dropped, sig)
}
