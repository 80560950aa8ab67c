package aladhan

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/vakit/internal/errs"
	"github.com/albapepper/vakit/internal/prayer"
	"github.com/albapepper/vakit/internal/provider"
)

const dayResponse = `{
	"code": 200,
	"status": "OK",
	"data": {
		"timings": {
			"Fajr": "05:10 (CET)", "Sunrise": "06:32 (CET)", "Dhuhr": "12:40 (CET)",
			"Asr": "16:05 (CET)", "Sunset": "18:55 (CET)", "Maghrib": "19:02 (CET)",
			"Isha": "20:20 (CET)", "Imsak": "05:00 (CET)", "Midnight": "00:45 (CET)"
		},
		"date": {"readable": "15 Mar 2025", "gregorian": {"date": "15-03-2025"}},
		"meta": {"timezone": "Europe/Amsterdam"}
	}
}`

func newTestHandler(url string) *Handler {
	return NewHandler(url, provider.ClientOptions{Backoff: time.Millisecond}, nil)
}

func TestGetTimings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/timings/15-03-2025", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "52.370000", q.Get("latitude"))
		assert.Equal(t, "4.900000", q.Get("longitude"))
		assert.Equal(t, "3", q.Get("method"))
		assert.Equal(t, "1", q.Get("school"))
		w.Write([]byte(dayResponse))
	}))
	defer server.Close()

	date := time.Date(2025, time.March, 15, 9, 0, 0, 0, time.UTC)
	got, err := newTestHandler(server.URL).GetTimings(context.Background(), date, 52.37, 4.90, provider.MethodContext{MethodID: 3})
	require.NoError(t, err)
	assert.Equal(t, "15-03-2025", got.DateKey)
	assert.Equal(t, "Europe/Amsterdam", got.Timezone)
	assert.Equal(t, map[prayer.Name]string{
		prayer.Fajr: "05:10", prayer.Sunrise: "06:32", prayer.Dhuhr: "12:40",
		prayer.Asr: "16:05", prayer.Maghrib: "19:02", prayer.Isha: "20:20",
	}, got.Times)
}

func TestGetTimingsMissingField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":200,"data":{"timings":{"Fajr":"05:10","Dhuhr":"12:40"},"meta":{"timezone":"UTC"}}}`))
	}))
	defer server.Close()

	_, err := newTestHandler(server.URL).GetTimings(context.Background(), time.Now(), 1, 1, provider.MethodContext{})
	assert.True(t, errors.Is(err, errs.ErrDataIntegrity))
}

func TestGetTimingsNonJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer server.Close()

	_, err := newTestHandler(server.URL).GetTimings(context.Background(), time.Now(), 1, 1, provider.MethodContext{})
	assert.True(t, errors.Is(err, errs.ErrProviderUnavailable))
	assert.ErrorContains(t, err, "not JSON")
}

func TestGetTimingsDateMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(dayResponse))
	}))
	defer server.Close()

	date := time.Date(2025, time.March, 16, 9, 0, 0, 0, time.UTC)
	_, err := newTestHandler(server.URL).GetTimings(context.Background(), date, 1, 1, provider.MethodContext{})
	assert.True(t, errors.Is(err, errs.ErrDataIntegrity))
}

func TestGetMonthlyTimings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/calendar/2025/3", r.URL.Path)
		w.Write([]byte(`{"code":200,"data":[
			{"timings":{"Fajr":"05:10","Sunrise":"06:32","Dhuhr":"12:40","Asr":"16:05","Maghrib":"19:02","Isha":"20:20"},
			 "date":{"gregorian":{"date":"01-03-2025"}},"meta":{"timezone":"UTC"}},
			{"timings":{"Fajr":"05:08","Sunrise":"06:30","Dhuhr":"12:40","Asr":"16:06","Maghrib":"19:04","Isha":"20:22"},
			 "date":{"gregorian":{"date":"02-03-2025"}},"meta":{"timezone":"UTC"}},
			{"timings":{"Fajr":"05:06"},"date":{"gregorian":{"date":"03-03-2025"}},"meta":{"timezone":"UTC"}}
		]}`))
	}))
	defer server.Close()

	got, err := newTestHandler(server.URL).GetMonthlyTimings(context.Background(), 2025, time.March, 1, 1, provider.MethodContext{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "05:08", got["02-03-2025"].Times[prayer.Fajr])
	_, ok := got["03-03-2025"]
	assert.False(t, ok)
}
