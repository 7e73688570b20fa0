package services

import (
	"math"
	"time"

	"miqat/internal/models"
)

// ForbiddenWindows derives the three advisory (makruh) windows from a day's
// schedule. Pure function; recomputed whenever latitude or the schedule
// changes.
func ForbiddenWindows(day *models.ScheduleDay, latitude float64, safetyMinutes, zawalMinutes int) []models.ForbiddenWindow {
	if day == nil {
		return nil
	}
	sunrise := day.Event(models.EventSunrise)
	dhuhr := day.Event(models.EventDhuhr)
	maghrib := day.Event(models.EventMaghrib)
	if sunrise == nil || dhuhr == nil || maghrib == nil {
		return nil
	}

	buffer := time.Duration(SunBufferMinutes(latitude, safetyMinutes)) * time.Minute
	zawal := time.Duration(zawalMinutes) * time.Minute

	return []models.ForbiddenWindow{
		{
			Label: "Sunrise (Ishraq)",
			Start: sunrise.Time,
			End:   sunrise.Time.Add(buffer),
		},
		{
			Label: "Zawal (Noon)",
			Start: dhuhr.Time.Add(-zawal),
			End:   dhuhr.Time,
		},
		{
			Label: "Sunset (Ghurub)",
			Start: maghrib.Time.Add(-buffer),
			End:   maghrib.Time,
		},
	}
}

// SunBufferMinutes is the latitude-dependent buffer after sunrise and before
// sunset: the sun crosses 3.5 degrees of elevation at ~4 min/degree, slowed
// by the latitude's cosine (floored at 0.5 so polar latitudes stay bounded),
// plus a fixed safety margin.
func SunBufferMinutes(latitude float64, safetyMinutes int) int {
	cosLat := math.Cos(math.Abs(latitude) * math.Pi / 180)
	if cosLat < 0.5 {
		cosLat = 0.5
	}
	return int(math.Round(3.5*4/cosLat)) + safetyMinutes
}
