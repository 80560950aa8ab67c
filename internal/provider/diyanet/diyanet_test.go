package diyanet

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/vakit/internal/errs"
	"github.com/albapepper/vakit/internal/external"
	"github.com/albapepper/vakit/internal/prayer"
	"github.com/albapepper/vakit/internal/provider"
)

type stubGeocoder struct {
	place external.Place
	calls int32
}

func (s *stubGeocoder) Reverse(ctx context.Context, lat, lon float64) (external.Place, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.place, nil
}

const dailyRows = `{"data":[
	{"gregorianDateShort":"14.03.2025","imsak":"05:50","gunes":"07:12","ogle":"13:16","ikindi":"16:36","aksam":"19:12","yatsi":"20:29"},
	{"gregorianDateShort":"15.03.2025","İmsak":"05:48","Güneş":"07:10","Öğle":"13:16","İkindi":"16:37","Akşam":"19:13","Yatsı":"20:30"}
]}`

func newTestHandler(url string, geocoder ReverseGeocoder) *Handler {
	return NewHandler(Options{
		BaseURL:  url,
		Client:   provider.ClientOptions{Backoff: time.Millisecond},
		Geocoder: geocoder,
	}, nil)
}

func TestGetTimingsViaProxyGeocode(t *testing.T) {
	var geocodeCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/geocode", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&geocodeCalls, 1)
		w.Write([]byte(`{"data":{"id":"9541","name":"İstanbul","country":"Türkiye"}}`))
	})
	mux.HandleFunc("/prayertimes/daily", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "9541", r.URL.Query().Get("cityId"))
		assert.Equal(t, "2025-03-15", r.URL.Query().Get("date"))
		w.Write([]byte(dailyRows))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	h := newTestHandler(server.URL, nil)
	date := time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)
	mc := provider.MethodContext{MethodID: MethodID, Timezone: "Europe/Istanbul"}

	got, err := h.GetTimings(context.Background(), date, 41.01, 28.97, mc)
	require.NoError(t, err)
	assert.Equal(t, "15-03-2025", got.DateKey)
	assert.Equal(t, "Europe/Istanbul", got.Timezone)
	assert.Equal(t, "05:48", got.Times[prayer.Fajr])
	assert.Equal(t, "20:30", got.Times[prayer.Isha])

	_, err = h.GetTimings(context.Background(), date, 41.012, 28.971, mc)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&geocodeCalls), "second lookup served from memo")

	label, ok := h.CityLabel("9541")
	assert.True(t, ok)
	assert.Equal(t, "İstanbul, Türkiye", label)
}

func TestResolveCityFallsBackToFuzzyMatch(t *testing.T) {
	var cityCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/geocode", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/cities", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&cityCalls, 1)
		w.Write([]byte(`[
			{"id":"1","name":"Ankara","country":"Türkiye"},
			{"id":"2","name":"Kadıköy","state":"İstanbul","country":"Türkiye"},
			{"id":"3","name":"Kadikoy","country":"Cyprus"}
		]`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	geo := &stubGeocoder{place: external.Place{City: "Kadikoy", State: "Istanbul", Country: "Türkiye", CountryCode: "tr"}}
	h := newTestHandler(server.URL, geo)

	id, err := h.ResolveCity(context.Background(), 40.99, 29.03, "")
	require.NoError(t, err)
	assert.Equal(t, "2", id)

	h.InvalidateCities()
	_, err = h.ResolveCity(context.Background(), 40.99, 29.03, "")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&cityCalls))
}

func TestResolveCityForced(t *testing.T) {
	h := NewHandler(Options{BaseURL: "http://127.0.0.1:0", ForceCityID: "42"}, nil)
	id, err := h.ResolveCity(context.Background(), 1, 2, "")
	require.NoError(t, err)
	assert.Equal(t, "42", id)
}

func TestResolveCityNoMatch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/geocode", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/cities", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"1","name":"Ankara","country":"Türkiye"}]`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	h := newTestHandler(server.URL, &stubGeocoder{place: external.Place{City: "Amsterdam", Country: "Nederland"}})
	_, err := h.ResolveCity(context.Background(), 52.37, 4.90, "")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestGetMonthlyTimings(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/prayertimes/monthly", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2025", r.URL.Query().Get("year"))
		assert.Equal(t, "3", r.URL.Query().Get("month"))
		w.Write([]byte(dailyRows))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	h := NewHandler(Options{BaseURL: server.URL, ForceCityID: "9541"}, nil)
	got, err := h.GetMonthlyTimings(context.Background(), 2025, time.March, 0, 0, provider.MethodContext{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "05:50", got["14-03-2025"].Times[prayer.Fajr])
}

func TestSelectDay(t *testing.T) {
	full := func(date string) map[string]interface{} {
		row := map[string]interface{}{
			"fajr": "05:00", "sunrise": "06:30", "dhuhr": "12:30",
			"asr": "15:45", "maghrib": "18:20", "isha": "19:40",
		}
		if date != "" {
			row["date"] = date
		}
		return row
	}

	t.Run("matching date wins over undated", func(t *testing.T) {
		undated := full("")
		undated["fajr"] = "04:00"
		got, err := selectDay([]map[string]interface{}{undated, full("2025-03-15")}, "15-03-2025", "")
		require.NoError(t, err)
		assert.Equal(t, "05:00", got.Times[prayer.Fajr])
	})

	t.Run("undated row used when no date matches", func(t *testing.T) {
		got, err := selectDay([]map[string]interface{}{full("2025-03-14"), full("")}, "15-03-2025", "")
		require.NoError(t, err)
		assert.Equal(t, "15-03-2025", got.DateKey)
	})

	t.Run("dated mismatch only is an error", func(t *testing.T) {
		_, err := selectDay([]map[string]interface{}{full("2025-03-14")}, "15-03-2025", "")
		assert.True(t, errors.Is(err, errs.ErrDataIntegrity))
	})

	t.Run("incomplete undated row skipped", func(t *testing.T) {
		_, err := selectDay([]map[string]interface{}{{"fajr": "05:00"}}, "15-03-2025", "")
		assert.True(t, errors.Is(err, errs.ErrDataIntegrity))
	})
}

func TestScore(t *testing.T) {
	place := external.Place{City: "Istanbul", Country: "Türkiye", CountryCode: "tr"}
	exact := City{Name: "İSTANBUL", Country: "Türkiye"}
	foreign := City{Name: "Istanbul", Country: "Germany"}
	assert.Greater(t, Score(exact, place, "", 0, 0), Score(foreign, place, "", 0, 0))
	assert.Equal(t, 0.0, Score(City{Name: "Ankara"}, place, "", 0, 0))
	assert.Greater(t, Score(City{Name: "Fatih"}, place, "Fatih", 0, 0), 0.0)
}
