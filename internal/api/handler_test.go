package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"miqat/internal/models"
	"miqat/internal/services"
	"miqat/internal/storage"
)

type stubAstronomer struct{}

func (stubAstronomer) Timings(ctx context.Context, coords models.Coordinate, date time.Time, convention models.Convention, school models.School) (map[models.EventID]time.Time, error) {
	base := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return map[models.EventID]time.Time{
		models.EventFajr:    base.Add(5 * time.Hour),
		models.EventSunrise: base.Add(6 * time.Hour),
		models.EventDhuhr:   base.Add(12 * time.Hour),
		models.EventAsr:     base.Add(16 * time.Hour),
		models.EventMaghrib: base.Add(18 * time.Hour),
		models.EventIsha:    base.Add(19 * time.Hour),
	}, nil
}

type stubConverter struct{}

func (stubConverter) HijriDate(ctx context.Context, date time.Time, coords models.Coordinate, convention models.Convention, adjustment int) (models.HijriDate, error) {
	return models.HijriDate{Year: 1446, Month: 7, Day: 1, MonthName: "Rajab"}, nil
}

type stubChain struct{}

func (stubChain) Lookup(ctx context.Context) (models.Coordinate, string, error) {
	return models.Coordinate{}, "", context.DeadlineExceeded
}

type stubGeocoder struct{}

func (stubGeocoder) ReverseGeocode(ctx context.Context, coords models.Coordinate) (string, error) {
	return "Kolkata, West Bengal, India", nil
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	store := storage.NewMemory()
	logger := zap.NewNop()

	resolver := services.NewResolver(services.ResolverConfig{
		Default:        models.Coordinate{Latitude: 22.5726, Longitude: 88.3639},
		GPSHighTimeout: 50 * time.Millisecond,
		GPSLowTimeout:  50 * time.Millisecond,
	}, store, stubChain{}, services.NoGPS{}, nil, logger)
	t.Cleanup(resolver.Close)

	schedule := services.NewScheduleEngine(stubAstronomer{}, logger)
	reconciler := services.NewReconciler(stubConverter{}, -1, logger)
	t.Cleanup(reconciler.Close)

	settings := services.NewSettingsManager(store,
		services.RegionBounds{MinLat: 5, MaxLat: 38, MinLon: 60, MaxLon: 98}, logger)
	places := services.NewPlaceNameCache(store, 100, logger)

	engine := services.NewEngine(
		services.EngineConfig{SafetyBufferMinutes: 5, ZawalBufferMinutes: 10},
		resolver, schedule, reconciler, settings, places, stubGeocoder{}, logger,
	)

	app := fiber.New()
	SetupRoutes(app, NewHandler(engine, logger), logger)
	return app
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, out))
}

func TestGetHealth(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	decode(t, resp, &body)
	assert.Equal(t, "healthy", body["status"])
}

func TestGetLocation(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/location/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Sample models.LocationSample `json:"sample"`
		Place  string                `json:"place"`
	}
	decode(t, resp, &body)
	assert.Equal(t, models.SourceDefault, body.Sample.Source)
	assert.Equal(t, "Kolkata, West Bengal, India", body.Place)
}

func TestRefreshLocationAccepted(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/location/refresh", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestGetScheduleForDate(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/schedule/?date=2025-03-15", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var day models.ScheduleDay
	decode(t, resp, &day)
	assert.Len(t, day.Events, 6)
	assert.Equal(t, 15, day.Date.Day())
}

func TestGetScheduleRejectsBadDate(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/schedule/?date=15-03-2025", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetScheduleStateBeforeFirstCompute(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/schedule/state", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestSettingsRoundTrip(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/settings", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got models.Settings
	decode(t, resp, &got)
	assert.Equal(t, models.SchoolHanafi, got.School)
	// The default coordinate sits inside the auto-selection region.
	assert.Equal(t, models.ConventionKarachi, got.Convention)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/settings",
		strings.NewReader(`{"school":"Standard","convention":"UmmAlQura"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	decode(t, resp, &got)
	assert.Equal(t, models.SchoolStandard, got.School)
	assert.Equal(t, models.ConventionUmmAlQura, got.Convention)
}

func TestSettingsRejectsUnknownSchool(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/settings",
		strings.NewReader(`{"school":"Imaginary"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownRouteReturns404(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetForbiddenAndCalendar(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/forbidden", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/calendar", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
