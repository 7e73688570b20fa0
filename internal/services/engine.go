package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"miqat/internal/models"
)

// Geocoder turns a coordinate into a human-readable place name.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, coords models.Coordinate) (string, error)
}

type EngineConfig struct {
	SafetyBufferMinutes int
	ZawalBufferMinutes  int
}

// Engine glues the resolver, schedule, reconciler and caches together and
// holds the per-tick derived outputs the presentation layer reads.
type Engine struct {
	cfg        EngineConfig
	resolver   *Resolver
	schedule   *ScheduleEngine
	reconciler *Reconciler
	settings   *SettingsManager
	places     *PlaceNameCache
	geocoder   Geocoder
	logger     *zap.Logger

	mu         sync.RWMutex
	viewedDate time.Time
	day        *models.ScheduleDay
	state      models.ScheduleState
	label      models.CalendarLabel
	windows    []models.ForbiddenWindow
	lastKey    string
	computing  bool

	now func() time.Time
}

func NewEngine(cfg EngineConfig, resolver *Resolver, schedule *ScheduleEngine, reconciler *Reconciler, settings *SettingsManager, places *PlaceNameCache, geocoder Geocoder, logger *zap.Logger) *Engine {
	now := time.Now
	return &Engine{
		cfg:        cfg,
		resolver:   resolver,
		schedule:   schedule,
		reconciler: reconciler,
		settings:   settings,
		places:     places,
		geocoder:   geocoder,
		logger:     logger,
		viewedDate: midnight(now()),
		now:        now,
	}
}

// midnight truncates an instant to its local calendar day.
func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Tick runs once per second: it detects day rollover, keeps the schedule for
// the current key tuple warm, and re-derives all projected outputs. The
// expensive ComputeDay is decoupled from the tick and fires only when the
// key tuple changes.
func (e *Engine) Tick(ctx context.Context) {
	now := e.now()

	e.mu.Lock()
	if today := midnight(now); !today.Equal(e.viewedDate) {
		e.logger.Info("Day rollover", zap.Time("from", e.viewedDate), zap.Time("to", today))
		e.viewedDate = today
	}
	viewed := e.viewedDate
	e.mu.Unlock()

	sample, _, _ := e.resolver.Snapshot()
	settings := e.settings.Current(sample.Coords)

	key := dayKey(viewed, sample.Coords, settings.School, settings.Convention)
	e.mu.Lock()
	needCompute := key != e.lastKey && !e.computing
	if needCompute {
		e.computing = true
	}
	day := e.day
	e.mu.Unlock()

	if needCompute {
		go e.computeDay(ctx, key, viewed, sample.Coords, settings)
	}
	if day == nil {
		return
	}

	state := DeriveState(day, now)
	windows := ForbiddenWindows(day, day.Coords.Latitude, e.cfg.SafetyBufferMinutes, e.cfg.ZawalBufferMinutes)

	var label models.CalendarLabel
	if maghrib := day.Event(models.EventMaghrib); maghrib != nil {
		label = e.reconciler.Label(viewed, day.Coords, day.Convention, maghrib.Time)
	}

	e.mu.Lock()
	e.state = state
	e.windows = windows
	e.label = label
	e.mu.Unlock()
}

func (e *Engine) computeDay(ctx context.Context, key string, date time.Time, coords models.Coordinate, settings models.Settings) {
	computeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	day, err := e.schedule.ComputeDay(computeCtx, date, coords, settings.School, settings.Convention)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.computing = false
	if err != nil {
		e.logger.Error("Schedule computation failed", zap.String("key", key), zap.Error(err))
		return
	}
	e.day = day
	e.lastKey = key
}

// Day returns the schedule for an arbitrary date at the current location,
// for date browsing outside the live viewed day.
func (e *Engine) Day(ctx context.Context, date time.Time) (*models.ScheduleDay, error) {
	sample, _, _ := e.resolver.Snapshot()
	settings := e.settings.Current(sample.Coords)
	return e.schedule.ComputeDay(ctx, midnight(date), sample.Coords, settings.School, settings.Convention)
}

// PlaceName resolves a display name for the coordinate, consulting the
// bounded cache before the geocoder. Failures yield "".
func (e *Engine) PlaceName(ctx context.Context, coords models.Coordinate) string {
	if name, ok := e.places.Get(coords.Latitude, coords.Longitude); ok {
		return name
	}
	name, err := e.geocoder.ReverseGeocode(ctx, coords)
	if err != nil {
		e.logger.Debug("Reverse geocode failed", zap.Error(err))
		return ""
	}
	e.places.Set(coords.Latitude, coords.Longitude, name)
	return name
}

func (e *Engine) Resolver() *Resolver        { return e.resolver }
func (e *Engine) Settings() *SettingsManager { return e.settings }

// CurrentDay returns the live viewed day's schedule, or nil before the first
// computation lands.
func (e *Engine) CurrentDay() *models.ScheduleDay {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.day
}

func (e *Engine) State() models.ScheduleState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) CalendarLabel() models.CalendarLabel {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.label
}

func (e *Engine) Forbidden() []models.ForbiddenWindow {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.windows
}

// Close tears down background workers the engine owns.
func (e *Engine) Close() {
	e.reconciler.Close()
}

func (e *Engine) ViewedDate() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.viewedDate
}
