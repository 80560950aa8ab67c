package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/albapepper/vakit/internal/api/respond"
	"github.com/albapepper/vakit/internal/prayer"
)

// MonthResponse is the month view payload. Days keep calendar order.
type MonthResponse struct {
	Year     int              `json:"year"`
	Month    int              `json:"month"`
	Complete bool             `json:"complete"`
	Days     []prayer.Timings `json:"days"`
	Missing  []string         `json:"missing,omitempty"`
}

// NextResponse describes the upcoming prayer.
type NextResponse struct {
	Name      prayer.Name `json:"name"`
	DateKey   string      `json:"dateKey"`
	At        string      `json:"at"` // RFC 3339
	Countdown string      `json:"countdown"`
	Seconds   int64       `json:"seconds"`
	Tomorrow  bool        `json:"tomorrow"`
}

// GetToday serves today's timings, falling back to the last cached day.
// @Summary Today's timings
// @Description Cache first; when today cannot be resolved the latest cached record is returned with source=cache.
// @Tags timings
// @Produce json
// @Success 200 {object} timings.CachedTimings
// @Failure 404 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Router /api/v1/timings/today [get]
func (h *Handler) GetToday(w http.ResponseWriter, r *http.Request) {
	s, fix, err := h.resolveContext(r.Context())
	if err != nil {
		writeResolveError(w, err)
		return
	}
	rec, err := h.deps.Timings.TodayOrLatest(r.Context(), fix, s)
	if err != nil {
		writeResolveError(w, err)
		return
	}
	respond.WriteCachedObject(w, r, rec)
}

// GetMonth serves every resolvable day of a month.
// @Summary Month timings
// @Tags timings
// @Produce json
// @Param year query int false "Year, defaults to the current year"
// @Param month query int false "Month 1-12, defaults to the current month"
// @Success 200 {object} MonthResponse
// @Failure 400 {object} respond.ErrorResponse
// @Failure 409 {object} respond.ErrorResponse
// @Router /api/v1/timings/month [get]
func (h *Handler) GetMonth(w http.ResponseWriter, r *http.Request) {
	now := h.now().In(h.deps.Timings.Zone())
	year, month := now.Year(), int(now.Month())
	if v := r.URL.Query().Get("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_YEAR", "year must be a positive integer")
			return
		}
		year = n
	}
	if v := r.URL.Query().Get("month"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 12 {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_MONTH", "month must be between 1 and 12")
			return
		}
		month = n
	}

	s, fix, err := h.resolveContext(r.Context())
	if err != nil {
		writeResolveError(w, err)
		return
	}
	if fix == nil {
		writeNoLocation(w)
		return
	}

	days, err := h.deps.Timings.LoadMonth(r.Context(), year, time.Month(month), *fix, s)
	if len(days) == 0 && err != nil {
		writeResolveError(w, err)
		return
	}
	if err != nil {
		h.logger.Warn("Month partially resolved", "year", year, "month", month, "days", len(days), "error", err)
	}

	resp := MonthResponse{Year: year, Month: month, Days: make([]prayer.Timings, 0, len(days))}
	for _, k := range prayer.MonthKeys(year, time.Month(month), h.deps.Timings.Zone()) {
		if t, ok := days[k]; ok {
			resp.Days = append(resp.Days, t)
		} else {
			resp.Missing = append(resp.Missing, k)
		}
	}
	resp.Complete = len(resp.Missing) == 0
	respond.WriteCachedObject(w, r, resp)
}

// GetNext serves the upcoming prayer and the countdown to it.
// @Summary Next prayer
// @Tags timings
// @Produce json
// @Success 200 {object} NextResponse
// @Failure 409 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Router /api/v1/next [get]
func (h *Handler) GetNext(w http.ResponseWriter, r *http.Request) {
	s, fix, err := h.resolveContext(r.Context())
	if err != nil {
		writeResolveError(w, err)
		return
	}
	if fix == nil {
		writeNoLocation(w)
		return
	}
	today, tomorrow, err := h.deps.Timings.TodayTomorrow(r.Context(), *fix, s)
	if err != nil {
		writeResolveError(w, err)
		return
	}
	now := h.now()
	next, ok := prayer.NextPrayer(&today, &tomorrow, now, h.deps.Timings.Zone())
	if !ok {
		respond.WriteError(w, http.StatusNotFound, "NO_UPCOMING_PRAYER", "No upcoming prayer in the resolved window")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, NextResponse{
		Name:      next.Name,
		DateKey:   next.DateKey,
		At:        next.At.Format(time.RFC3339),
		Countdown: prayer.FormatCountdown(next.TimeLeft),
		Seconds:   int64(next.TimeLeft / time.Second),
		Tomorrow:  next.Tomorrow,
	})
}
