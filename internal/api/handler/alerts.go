package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/albapepper/vakit/internal/api/respond"
	"github.com/albapepper/vakit/internal/mosque"
	"github.com/albapepper/vakit/internal/notifications"
	"github.com/albapepper/vakit/internal/prayer"
)

// GetAlerts lists the alerts currently scheduled.
// @Summary Pending alerts
// @Tags notifications
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/alerts [get]
func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := []notifications.Alert{}
	if h.deps.Alerts != nil {
		alerts = append(alerts, h.deps.Alerts.Pending()...)
	}
	body := map[string]interface{}{
		"count":  len(alerts),
		"alerts": alerts,
	}
	if h.deps.Replanner != nil {
		st := h.deps.Replanner.Queue().State()
		body["lastSignature"] = st.LastSignature
		if !st.LastAppliedAt.IsZero() {
			body["lastAppliedAt"] = st.LastAppliedAt.UTC().Format(time.RFC3339)
		}
	}
	respond.WriteJSONObject(w, http.StatusOK, body)
}

// PostReplan runs a replan with the stored settings.
// @Summary Trigger a replan
// @Description Runs the replanning pipeline. Unchanged inputs inside the debounce window are reported as skipped.
// @Tags notifications
// @Produce json
// @Success 200 {object} notifications.Result
// @Failure 502 {object} respond.ErrorResponse
// @Router /api/v1/replan [post]
func (h *Handler) PostReplan(w http.ResponseWriter, r *http.Request) {
	if h.deps.Replanner == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "REPLAN_DISABLED", "Replanner not configured")
		return
	}
	s, err := h.deps.Settings.Load(r.Context())
	if err != nil {
		writeResolveError(w, err)
		return
	}
	res, err := h.deps.Replanner.Replan(r.Context(), s)
	if err != nil {
		writeResolveError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, res)
}

// GetSettings returns the stored settings record.
// @Summary Current settings
// @Tags settings
// @Produce json
// @Success 200 {object} settings.Settings
// @Router /api/v1/settings [get]
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.deps.Settings.Load(r.Context())
	if err != nil {
		writeResolveError(w, err)
		return
	}
	respond.WriteCachedObject(w, r, s)
}

// GetMosques ranks nearby mosques by whether they can be reached before the
// next prayer.
// @Summary Nearby mosques
// @Tags mosques
// @Produce json
// @Param profile query string false "Travel profile" Enums(walk, drive)
// @Param radius query int false "Search radius in meters"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} respond.ErrorResponse
// @Router /api/v1/mosques [get]
func (h *Handler) GetMosques(w http.ResponseWriter, r *http.Request) {
	if h.deps.Mosques == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "MOSQUES_DISABLED", "Mosque lookup not configured")
		return
	}
	radius := mosque.DefaultRadius
	if v := r.URL.Query().Get("radius"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_RADIUS", "radius must be a positive integer")
			return
		}
		radius = n
	}
	profile := mosque.ProfileByName(r.URL.Query().Get("profile"))

	s, fix, err := h.resolveContext(r.Context())
	if err != nil {
		writeResolveError(w, err)
		return
	}
	if fix == nil {
		writeNoLocation(w)
		return
	}
	place, err := h.deps.Mosques.Nearby(r.Context(), *fix, radius)
	if err != nil {
		writeResolveError(w, err)
		return
	}

	body := map[string]interface{}{
		"qibla":     place.Qibla,
		"profile":   profile.Name,
		"updatedAt": place.UpdatedAt,
	}
	today, tomorrow, err := h.deps.Timings.TodayTomorrow(r.Context(), *fix, s)
	if err != nil {
		h.logger.Warn("Timings unavailable for mosque ranking", "error", err)
		body["mosques"] = mosque.Rank(*fix, place.Mosques, 0, profile)
		respond.WriteJSONObject(w, http.StatusOK, body)
		return
	}
	next, ok := mosque.TimeLeft(&today, &tomorrow, h.now(), h.deps.Timings.Zone())
	if ok {
		body["nextPrayer"] = next.Name
		body["countdown"] = prayer.FormatCountdown(next.TimeLeft)
	}
	body["mosques"] = mosque.Rank(*fix, place.Mosques, next.TimeLeft, profile)
	respond.WriteJSONObject(w, http.StatusOK, body)
}
