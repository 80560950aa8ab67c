package settings

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/vakit/internal/prayer"
	"github.com/albapepper/vakit/internal/store"
)

func TestDefault(t *testing.T) {
	s := Default()
	assert.Equal(t, ProviderAladhan, s.TimingsProvider)
	assert.Equal(t, AsrSchool, s.AsrSchool)
	assert.Equal(t, LocationGPS, s.LocationMode)
	require.Len(t, s.Notifications, len(prayer.Names))
	assert.False(t, s.Notifications[prayer.Sunrise].Enabled)
	assert.True(t, s.Notifications[prayer.Isha].Enabled)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not json", "{{{"},
		{"array", "[1,2,3]"},
		{"null", "null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Default(), Decode([]byte(tt.input)))
		})
	}
}

func TestDecodeFieldLevelFallback(t *testing.T) {
	payload := `{
		"timingsProvider": "unknown",
		"methodId": "three",
		"locationMode": "manual",
		"manualLocation": {"label": "Nowhere", "lat": 200, "lon": 0},
		"notifications": {
			"Fajr": {"enabled": false, "minutesBefore": 7, "volume": 250, "tone": ""},
			"Asr": "garbage",
			"Tahajjud": {"enabled": true}
		}
	}`
	s := Decode([]byte(payload))

	assert.Equal(t, ProviderAladhan, s.TimingsProvider)
	assert.Equal(t, DefaultMethodID, s.MethodID)
	assert.Equal(t, LocationGPS, s.LocationMode, "manual without a valid location falls back to gps")
	assert.Nil(t, s.ManualLocation)

	require.Len(t, s.Notifications, len(prayer.Names))
	fajr := s.Notifications[prayer.Fajr]
	assert.False(t, fajr.Enabled)
	assert.Equal(t, DefaultMinutes, fajr.MinutesBefore)
	assert.Equal(t, 100, fajr.Volume)
	assert.Equal(t, DefaultTone, fajr.Tone)
	assert.Equal(t, DefaultNotification(prayer.Asr), s.Notifications[prayer.Asr])
	_, ok := s.Notifications[prayer.Name("Tahajjud")]
	assert.False(t, ok)
}

func TestDecodeValid(t *testing.T) {
	in := Default()
	in.TimingsProvider = ProviderDiyanet
	in.MethodID = 3
	in.MethodName = "Muslim World League"
	in.LocationMode = LocationManual
	in.ManualLocation = &ManualLocation{Query: "ist", Label: "Istanbul", Lat: 41.01, Lon: 28.97}
	in.Notifications[prayer.Maghrib] = Notification{Enabled: true, MinutesBefore: 30, Tone: "adhan", Volume: 40}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, in, Decode(data))
}

func TestRepositoryLoadSave(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	repo := NewRepository(mem, nil)

	s, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Default(), s)

	s.MethodID = 3
	s.Notifications[prayer.Dhuhr] = Notification{Enabled: true, MinutesBefore: 15, Volume: -5}
	saved, err := repo.Save(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 0, saved.Notifications[prayer.Dhuhr].Volume)

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)

	require.NoError(t, mem.Set(ctx, Key, "corrupt"))
	loaded, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Default(), loaded)
}

func TestClone(t *testing.T) {
	s := Default()
	s.ManualLocation = &ManualLocation{Label: "A", Lat: 1, Lon: 1}
	c := s.Clone()
	c.ManualLocation.Label = "B"
	c.Notifications[prayer.Fajr] = Notification{}
	assert.Equal(t, "A", s.ManualLocation.Label)
	assert.True(t, s.Notifications[prayer.Fajr].Enabled)
}
