package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"miqat/internal/models"
)

const timingsBody = `{
	"code": 200,
	"data": {
		"timings": {
			"Fajr": "05:02",
			"Sunrise": "06:21 (IST)",
			"Dhuhr": "12:09",
			"Asr": "15:28",
			"Maghrib": "17:57",
			"Isha": "19:16"
		},
		"date": {
			"hijri": {
				"day": "1",
				"year": "1446",
				"month": {"number": 7, "en": "Rajab"}
			}
		},
		"meta": {"timezone": "UTC"}
	}
}`

func TestAlAdhanTimings(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(timingsBody))
	}))
	defer srv.Close()

	c := NewAlAdhanClient(srv.URL, testChainConfig(), zap.NewNop())
	date := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	coords := models.Coordinate{Latitude: 28.61, Longitude: 77.21}

	timings, err := c.Timings(context.Background(), coords, date, models.ConventionMoonsighting, models.SchoolHanafi)
	require.NoError(t, err)

	assert.Equal(t, "/timings/01-01-2025", gotPath)
	assert.Equal(t, time.Date(2025, 1, 1, 5, 2, 0, 0, time.UTC), timings[models.EventFajr])
	// Timezone suffix is stripped before parsing.
	assert.Equal(t, time.Date(2025, 1, 1, 6, 21, 0, 0, time.UTC), timings[models.EventSunrise])
	assert.Equal(t, time.Date(2025, 1, 1, 19, 16, 0, 0, time.UTC), timings[models.EventIsha])
}

func TestAlAdhanHijriDate(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(timingsBody))
	}))
	defer srv.Close()

	c := NewAlAdhanClient(srv.URL, testChainConfig(), zap.NewNop())
	date := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	coords := models.Coordinate{Latitude: 24.86, Longitude: 67.0}

	hijri, err := c.HijriDate(context.Background(), date, coords, models.ConventionKarachi, -1)
	require.NoError(t, err)

	assert.Equal(t, models.HijriDate{Year: 1446, Month: 7, Day: 1, MonthName: "Rajab"}, hijri)
	assert.Equal(t, "Rajab 1, 1446 AH", hijri.Label())
	assert.Contains(t, gotQuery, "adjustment=-1")
	assert.Contains(t, gotQuery, "method=1")
	assert.Contains(t, gotQuery, "calendarMethod=MATHEMATICAL")
}

func TestAlAdhanMissingTiming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": 200, "data": {"timings": {"Fajr": "05:02"}, "meta": {"timezone": "UTC"}}}`))
	}))
	defer srv.Close()

	c := NewAlAdhanClient(srv.URL, testChainConfig(), zap.NewNop())
	_, err := c.Timings(context.Background(), models.Coordinate{Latitude: 1, Longitude: 1},
		time.Now(), models.ConventionMoonsighting, models.SchoolStandard)
	assert.Error(t, err)
}

func TestParseClock(t *testing.T) {
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	got, err := parseClock("17:45 (IST)", date, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 10, 17, 45, 0, 0, time.UTC), got)

	_, err = parseClock("not-a-time", date, time.UTC)
	assert.Error(t, err)
}
