package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"miqat/internal/models"
	"miqat/internal/storage"
)

var southAsiaBounds = RegionBounds{MinLat: 5, MaxLat: 38, MinLon: 60, MaxLon: 98}

func newTestSettings() *SettingsManager {
	return NewSettingsManager(storage.NewMemory(), southAsiaBounds, zap.NewNop())
}

func TestSettingsDefaultsByRegion(t *testing.T) {
	m := newTestSettings()

	// Inside the South Asia rectangle the regional convention wins.
	inside := m.Current(models.Coordinate{Latitude: 28.61, Longitude: 77.21})
	assert.Equal(t, models.SchoolHanafi, inside.School)
	assert.Equal(t, models.ConventionKarachi, inside.Convention)

	// Outside it, the global default applies.
	outside := m.Current(models.Coordinate{Latitude: 51.5, Longitude: -0.12})
	assert.Equal(t, models.SchoolHanafi, outside.School)
	assert.Equal(t, models.ConventionMoonsighting, outside.Convention)
}

func TestSettingsRegionBoundaryIsInclusive(t *testing.T) {
	m := newTestSettings()

	corner := m.Current(models.Coordinate{Latitude: 5, Longitude: 60})
	assert.Equal(t, models.ConventionKarachi, corner.Convention)

	past := m.Current(models.Coordinate{Latitude: 4.999, Longitude: 60})
	assert.Equal(t, models.ConventionMoonsighting, past.Convention)
}

func TestSettingsExplicitConventionOverridesRegion(t *testing.T) {
	m := newTestSettings()
	require.NoError(t, m.SetConvention(models.ConventionUmmAlQura))

	// The persisted choice wins everywhere, including inside the region.
	got := m.Current(models.Coordinate{Latitude: 28.61, Longitude: 77.21})
	assert.Equal(t, models.ConventionUmmAlQura, got.Convention)
}

func TestSettingsSchoolPersists(t *testing.T) {
	m := newTestSettings()
	require.NoError(t, m.SetSchool(models.SchoolStandard))

	got := m.Current(models.Coordinate{})
	assert.Equal(t, models.SchoolStandard, got.School)
}

func TestSettingsRejectsUnknownValues(t *testing.T) {
	m := newTestSettings()

	assert.Error(t, m.SetSchool("Shafii-typo"))
	assert.Error(t, m.SetConvention("NoSuchMethod"))

	// A failed write never corrupts the effective settings.
	got := m.Current(models.Coordinate{Latitude: 28.61, Longitude: 77.21})
	assert.Equal(t, models.SchoolHanafi, got.School)
	assert.Equal(t, models.ConventionKarachi, got.Convention)
}

func TestSettingsIgnoresCorruptPersistedValues(t *testing.T) {
	store := storage.NewMemory()
	require.NoError(t, store.Set(schoolKey, "garbage"))
	require.NoError(t, store.Set(conventionKey, "garbage"))

	m := NewSettingsManager(store, southAsiaBounds, zap.NewNop())
	got := m.Current(models.Coordinate{Latitude: 28.61, Longitude: 77.21})
	assert.Equal(t, models.SchoolHanafi, got.School)
	assert.Equal(t, models.ConventionKarachi, got.Convention)
}
