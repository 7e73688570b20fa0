package services

import (
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"miqat/internal/models"
	"miqat/internal/storage"
)

const (
	schoolKey     = "madhab"
	conventionKey = "calculation_method"
)

// RegionBounds is the fixed bounding rectangle used to auto-select a
// calculation convention when the user never chose one.
type RegionBounds struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

func (b RegionBounds) Contains(coords models.Coordinate) bool {
	return coords.Latitude >= b.MinLat && coords.Latitude <= b.MaxLat &&
		coords.Longitude >= b.MinLon && coords.Longitude <= b.MaxLon
}

// SettingsManager persists the user's school and convention. The convention
// is only persisted once explicitly chosen; until then it is auto-selected
// from the current coordinate.
type SettingsManager struct {
	store     storage.Store
	southAsia RegionBounds
	logger    *zap.Logger
	mu        sync.Mutex
}

func NewSettingsManager(store storage.Store, southAsia RegionBounds, logger *zap.Logger) *SettingsManager {
	return &SettingsManager{
		store:     store,
		southAsia: southAsia,
		logger:    logger,
	}
}

// Current resolves the effective settings for a coordinate.
func (m *SettingsManager) Current(coords models.Coordinate) models.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings := models.Settings{
		School:     models.SchoolHanafi,
		Convention: models.ConventionMoonsighting,
	}

	if saved, err := m.store.Get(schoolKey); err == nil {
		switch models.School(saved) {
		case models.SchoolStandard, models.SchoolHanafi:
			settings.School = models.School(saved)
		}
	}

	if saved, err := m.store.Get(conventionKey); err == nil && models.Convention(saved).Known() {
		settings.Convention = models.Convention(saved)
		return settings
	}

	if m.southAsia.Contains(coords) {
		settings.Convention = models.ConventionKarachi
	}
	return settings
}

func (m *SettingsManager) SetSchool(school models.School) error {
	if school != models.SchoolStandard && school != models.SchoolHanafi {
		return eris.Errorf("settings: unknown school %q", school)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Set(schoolKey, string(school)); err != nil {
		m.logger.Warn("Failed to persist school", zap.Error(err))
	}
	return nil
}

func (m *SettingsManager) SetConvention(convention models.Convention) error {
	if !convention.Known() {
		return eris.Errorf("settings: unknown convention %q", convention)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Set(conventionKey, string(convention)); err != nil {
		m.logger.Warn("Failed to persist convention", zap.Error(err))
	}
	return nil
}
