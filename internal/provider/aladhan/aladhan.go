// Package aladhan adapts the coordinate-based Aladhan API.
//
// Aladhan computes timings from latitude/longitude with an arbitrary
// calculation method and a school parameter for Asr. Times come back as
// "HH:MM (TZ)" strings keyed by English prayer names.
package aladhan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/albapepper/vakit/internal/errs"
	"github.com/albapepper/vakit/internal/prayer"
	"github.com/albapepper/vakit/internal/provider"
)

// DefaultBaseURL is the public v1 API root.
const DefaultBaseURL = "https://api.aladhan.com/v1"

// Handler fetches and normalizes Aladhan timings.
type Handler struct {
	client *provider.Client
	logger *slog.Logger
}

// NewHandler creates an Aladhan handler.
func NewHandler(baseURL string, opts provider.ClientOptions, logger *slog.Logger) *Handler {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		client: provider.NewClient(baseURL, opts, logger),
		logger: logger,
	}
}

// --------------------------------------------------------------------------
// Wire shapes
// --------------------------------------------------------------------------

type envelope struct {
	Code   int             `json:"code"`
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type dayRaw struct {
	Timings map[string]string `json:"timings"`
	Date    struct {
		Gregorian struct {
			Date string `json:"date"` // DD-MM-YYYY
		} `json:"gregorian"`
	} `json:"date"`
	Meta struct {
		Timezone string `json:"timezone"`
	} `json:"meta"`
}

// --------------------------------------------------------------------------
// Timings
// --------------------------------------------------------------------------

// GetTimings fetches one day.
func (h *Handler) GetTimings(ctx context.Context, date time.Time, lat, lon float64, mc provider.MethodContext) (prayer.Timings, error) {
	dateKey := prayer.DateKey(date)
	body, err := h.client.Get(ctx, "/timings/"+dateKey, queryParams(lat, lon, mc))
	if err != nil {
		return prayer.Timings{}, fmt.Errorf("fetch aladhan timings %s: %w", dateKey, err)
	}

	data, err := decodeEnvelope(body)
	if err != nil {
		return prayer.Timings{}, err
	}
	var raw dayRaw
	if err := json.Unmarshal(data, &raw); err != nil {
		return prayer.Timings{}, fmt.Errorf("%w: decode aladhan day: %v", errs.ErrProviderUnavailable, err)
	}
	if got := raw.Date.Gregorian.Date; got != "" && got != dateKey {
		return prayer.Timings{}, fmt.Errorf("%w: aladhan returned %s for %s", errs.ErrDataIntegrity, got, dateKey)
	}
	return normalizeDay(dateKey, raw, mc.Timezone)
}

// GetMonthlyTimings fetches a calendar month in one call.
func (h *Handler) GetMonthlyTimings(ctx context.Context, year int, month time.Month, lat, lon float64, mc provider.MethodContext) (map[string]prayer.Timings, error) {
	path := fmt.Sprintf("/calendar/%d/%d", year, int(month))
	body, err := h.client.Get(ctx, path, queryParams(lat, lon, mc))
	if err != nil {
		return nil, fmt.Errorf("fetch aladhan calendar %d-%02d: %w", year, int(month), err)
	}

	data, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	var days []dayRaw
	if err := json.Unmarshal(data, &days); err != nil {
		return nil, fmt.Errorf("%w: decode aladhan calendar: %v", errs.ErrProviderUnavailable, err)
	}

	out := make(map[string]prayer.Timings, len(days))
	for _, d := range days {
		key := d.Date.Gregorian.Date
		if key == "" {
			continue
		}
		t, err := normalizeDay(key, d, mc.Timezone)
		if err != nil {
			h.logger.Warn("Skipping invalid aladhan calendar day", "date", key, "error", err)
			continue
		}
		out[key] = t
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: aladhan calendar %d-%02d has no valid days", errs.ErrDataIntegrity, year, int(month))
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func queryParams(lat, lon float64, mc provider.MethodContext) url.Values {
	school := mc.School
	if school == 0 {
		school = provider.SchoolHanafi
	}
	return url.Values{
		"latitude":  {strconv.FormatFloat(lat, 'f', 6, 64)},
		"longitude": {strconv.FormatFloat(lon, 'f', 6, 64)},
		"method":    {strconv.Itoa(mc.MethodID)},
		"school":    {strconv.Itoa(school)},
	}
}

func decodeEnvelope(body []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: aladhan response is not JSON: %s", errs.ErrProviderUnavailable, provider.Truncate(body, 80))
	}
	if env.Code != 0 && env.Code != 200 {
		return nil, fmt.Errorf("%w: aladhan code %d: %s", errs.ErrProviderUnavailable, env.Code, env.Status)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("%w: aladhan response has no data", errs.ErrProviderUnavailable)
	}
	return env.Data, nil
}

func normalizeDay(dateKey string, raw dayRaw, fallbackTZ string) (prayer.Timings, error) {
	times := make(map[prayer.Name]string, len(prayer.Names))
	for _, n := range prayer.Names {
		if v, ok := raw.Timings[string(n)]; ok {
			times[n] = v
		}
	}
	tz := raw.Meta.Timezone
	if tz == "" {
		tz = fallbackTZ
	}
	t, err := provider.BuildTimings(dateKey, tz, times)
	if err != nil {
		return prayer.Timings{}, fmt.Errorf("aladhan %s: %w", dateKey, err)
	}
	return t, nil
}
