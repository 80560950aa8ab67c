package notifications

import (
	"fmt"
	"strconv"
	"time"

	"github.com/albapepper/vakit/internal/prayer"
	"github.com/albapepper/vakit/internal/settings"
)

// State is what the queue remembers between replans.
type State struct {
	LastSignature string
	LastAppliedAt time.Time
}

// Gate reports whether a replan with sig should proceed at now. An
// identical signature applied less than Debounce ago is skipped.
func Gate(st State, sig string, now time.Time) bool {
	if st.LastSignature != sig || st.LastAppliedAt.IsZero() {
		return true
	}
	return now.Sub(st.LastAppliedAt) >= Debounce
}

// Commit records sig as applied at now.
func Commit(_ State, sig string, now time.Time) State {
	return State{LastSignature: sig, LastAppliedAt: now}
}

// Plan is the composed alert list.
type Plan struct {
	Alerts  []Alert
	Keys    []DedupeKey
	Dropped int
}

// Compose builds the alerts for days. Each enabled prayer gets an at_time
// alert and, when MinutesBefore > 0, an offset alert. Candidates that
// duplicate an earlier key or trigger at or before now are dropped.
func Compose(days []prayer.Timings, s settings.Settings, now time.Time, zone *time.Location) (Plan, error) {
	var plan Plan
	seen := make(map[DedupeKey]struct{})

	for _, day := range days {
		for _, name := range prayer.Names {
			pref := s.Notification(name)
			if !pref.Enabled {
				continue
			}
			at, err := day.At(name, zone)
			if err != nil {
				return Plan{}, fmt.Errorf("compose %s %s: %w", day.DateKey, name, err)
			}

			type candidate struct {
				intent  Intent
				minutes int
				trigger time.Time
			}
			candidates := []candidate{{IntentAtTime, 0, at}}
			if pref.MinutesBefore > 0 {
				offset := at.Add(-time.Duration(pref.MinutesBefore) * time.Minute)
				candidates = append([]candidate{{IntentOffset, pref.MinutesBefore, offset}}, candidates...)
			}

			for _, c := range candidates {
				key := DedupeKey{
					DateKey:        day.DateKey,
					Prayer:         name,
					Intent:         c.intent,
					MinutesBefore:  c.minutes,
					TriggerEpochMs: c.trigger.UnixMilli(),
				}
				if _, dup := seen[key]; dup || !c.trigger.After(now) {
					plan.Dropped++
					continue
				}
				seen[key] = struct{}{}
				plan.Keys = append(plan.Keys, key)
				plan.Alerts = append(plan.Alerts, buildAlert(key, c.trigger, day.Times[name], pref))
			}
		}
	}
	return plan, nil
}

func buildAlert(key DedupeKey, trigger time.Time, clock string, pref settings.Notification) Alert {
	title := string(key.Prayer)
	body := fmt.Sprintf("%s time %s", key.Prayer, clock)
	if key.Intent == IntentOffset {
		title = fmt.Sprintf("%s in %d minutes", key.Prayer, key.MinutesBefore)
		body = fmt.Sprintf("%s at %s", key.Prayer, clock)
	}
	sound := ""
	if pref.PlaySound {
		sound = pref.Tone
	}
	return Alert{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"dateKey":       key.DateKey,
			"prayer":        string(key.Prayer),
			"intent":        string(key.Intent),
			"minutesBefore": strconv.Itoa(key.MinutesBefore),
		},
		Sound:     sound,
		Volume:    pref.Volume,
		Vibrate:   pref.Vibration,
		TriggerAt: trigger,
	}
}
