package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"miqat/internal/models"
)

// AlAdhanClient talks to an AlAdhan-compatible timings service. It backs two
// collaborators: the astronomical timings function and the authoritative
// secondary-calendar conversion.
type AlAdhanClient struct {
	*BaseClient
	baseURL string
}

func NewAlAdhanClient(baseURL string, config ClientConfig, logger *zap.Logger) *AlAdhanClient {
	return &AlAdhanClient{
		BaseClient: NewBaseClient("aladhan", config, logger),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type timingsResponse struct {
	Code int `json:"code"`
	Data struct {
		Timings map[string]string `json:"timings"`
		Date    struct {
			Hijri struct {
				Day   string `json:"day"`
				Year  string `json:"year"`
				Month struct {
					Number int    `json:"number"`
					En     string `json:"en"`
				} `json:"month"`
			} `json:"hijri"`
		} `json:"date"`
		Meta struct {
			Timezone string `json:"timezone"`
		} `json:"meta"`
	} `json:"data"`
}

// apiDate renders the DD-MM-YYYY path segment the service expects.
func apiDate(date time.Time) string {
	return date.Format("02-01-2006")
}

// schoolParam maps the Asr shadow rule onto the service's school parameter.
func schoolParam(school models.School) int {
	if school == models.SchoolHanafi {
		return 1
	}
	return 0
}

// Timings fetches the six event instants for one date at one coordinate.
// Instants are returned in the location's own timezone as reported by the
// service.
func (c *AlAdhanClient) Timings(ctx context.Context, coords models.Coordinate, date time.Time, convention models.Convention, school models.School) (map[models.EventID]time.Time, error) {
	url := fmt.Sprintf("%s/timings/%s?latitude=%f&longitude=%f&method=%d&school=%d",
		c.baseURL, apiDate(date), coords.Latitude, coords.Longitude,
		convention.MethodID(), schoolParam(school))

	resp, err := c.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	loc := time.Local
	if resp.Data.Meta.Timezone != "" {
		if parsed, err := time.LoadLocation(resp.Data.Meta.Timezone); err == nil {
			loc = parsed
		}
	}

	events := map[models.EventID]string{
		models.EventFajr:    "Fajr",
		models.EventSunrise: "Sunrise",
		models.EventDhuhr:   "Dhuhr",
		models.EventAsr:     "Asr",
		models.EventMaghrib: "Maghrib",
		models.EventIsha:    "Isha",
	}

	out := make(map[models.EventID]time.Time, len(events))
	for id, key := range events {
		raw, ok := resp.Data.Timings[key]
		if !ok {
			return nil, eris.Errorf("aladhan: timing %s missing", key)
		}
		instant, err := parseClock(raw, date, loc)
		if err != nil {
			return nil, eris.Wrapf(err, "aladhan: timing %s", key)
		}
		out[id] = instant
	}
	return out, nil
}

// HijriDate fetches the authoritative secondary-calendar date for the given
// Gregorian date. adjustment is the fixed day offset some conventions need.
func (c *AlAdhanClient) HijriDate(ctx context.Context, date time.Time, coords models.Coordinate, convention models.Convention, adjustment int) (models.HijriDate, error) {
	url := fmt.Sprintf("%s/timings/%s?latitude=%f&longitude=%f&method=%d&calendarMethod=MATHEMATICAL&adjustment=%d",
		c.baseURL, apiDate(date), coords.Latitude, coords.Longitude,
		convention.MethodID(), adjustment)

	resp, err := c.fetch(ctx, url)
	if err != nil {
		return models.HijriDate{}, err
	}

	h := resp.Data.Date.Hijri
	day, err := strconv.Atoi(h.Day)
	if err != nil {
		return models.HijriDate{}, eris.Wrap(err, "aladhan: hijri day")
	}
	year, err := strconv.Atoi(h.Year)
	if err != nil {
		return models.HijriDate{}, eris.Wrap(err, "aladhan: hijri year")
	}

	return models.HijriDate{
		Year:      year,
		Month:     h.Month.Number,
		Day:       day,
		MonthName: h.Month.En,
	}, nil
}

func (c *AlAdhanClient) fetch(ctx context.Context, url string) (*timingsResponse, error) {
	body, err := c.GetWithRetry(ctx, url)
	if err != nil {
		return nil, eris.Wrap(err, "aladhan: fetch")
	}

	var resp timingsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "aladhan: parse response")
	}
	if resp.Code != 0 && resp.Code != 200 {
		return nil, eris.Errorf("aladhan: API code %d", resp.Code)
	}
	return &resp, nil
}

// parseClock turns "05:12" (optionally suffixed, e.g. "05:12 (IST)") into an
// instant on the given date in the given location.
func parseClock(raw string, date time.Time, loc *time.Location) (time.Time, error) {
	clock := strings.TrimSpace(raw)
	if i := strings.IndexByte(clock, ' '); i > 0 {
		clock = clock[:i]
	}

	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(),
		parsed.Hour(), parsed.Minute(), 0, 0, loc), nil
}
