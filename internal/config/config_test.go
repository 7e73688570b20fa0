package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"miqat/internal/models"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)

	assert.Equal(t, models.Coordinate{Latitude: 22.5726, Longitude: 88.3639}, cfg.Location.Default)
	assert.Equal(t, 15*time.Second, cfg.Location.GPSHighTimeout)
	assert.Equal(t, 10*time.Second, cfg.Location.GPSLowTimeout)
	assert.Equal(t, 4*time.Second, cfg.Location.IPTimeout)
	assert.Equal(t, 1500.0, cfg.Location.AccuracyThresholdMeters)

	assert.Equal(t, models.SchoolHanafi, cfg.Calculation.School)
	assert.Empty(t, cfg.Calculation.Convention, "no convention pin by default")
	assert.Equal(t, -1, cfg.Calculation.KarachiDayOffset)

	assert.Equal(t, 5, cfg.Forbidden.SafetyBufferMinutes)
	assert.Equal(t, 10, cfg.Forbidden.ZawalBufferMinutes)
	assert.Equal(t, 100, cfg.Cache.MaxPlaceNames)
	assert.Equal(t, "miqat.db", cfg.Store.Path)
	assert.Equal(t, "https://api.aladhan.com/v1", cfg.Services.CalendarBaseURL)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("FIBER_PORT", "9090")
	t.Setenv("DEFAULT_LAT", "24.8607")
	t.Setenv("DEFAULT_LON", "67.0011")
	t.Setenv("GPS_HIGH_TIMEOUT", "5s")
	t.Setenv("SCHOOL", "Standard")
	t.Setenv("CONVENTION", "UmmAlQura")
	t.Setenv("MAX_CACHED_PLACES", "50")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, models.Coordinate{Latitude: 24.8607, Longitude: 67.0011}, cfg.Location.Default)
	assert.Equal(t, 5*time.Second, cfg.Location.GPSHighTimeout)
	assert.Equal(t, models.SchoolStandard, cfg.Calculation.School)
	assert.Equal(t, models.ConventionUmmAlQura, cfg.Calculation.Convention)
	assert.Equal(t, 50, cfg.Cache.MaxPlaceNames)
}

func TestParseHelpersFallBackToZero(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseDuration("not-a-duration"))
	assert.Equal(t, 0, parseInt("NaN"))
	assert.Equal(t, 0.0, parseFloat("NaN-ish"))
}
