package models

import (
	"fmt"
	"math"
	"time"
)

// Source is the trust tier of a location sample. Higher tiers are never
// overwritten by lower ones.
type Source string

const (
	SourceDefault Source = "default"
	SourceIP      Source = "ip"
	SourceGPS     Source = "gps"
)

// Rank orders tiers for arbitration: gps > ip > default.
func (s Source) Rank() int {
	switch s {
	case SourceGPS:
		return 2
	case SourceIP:
		return 1
	default:
		return 0
	}
}

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IsZero reports the (0,0) sentinel that several IP providers return on
// failure instead of an error status.
func (c Coordinate) IsZero() bool {
	return c.Latitude == 0 && c.Longitude == 0
}

func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) {
		return false
	}
	if math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// Key renders the coordinate rounded to the given number of decimal places,
// e.g. Key(3) -> "22.573_88.364". Used as cache key material.
func (c Coordinate) Key(places int) string {
	return fmt.Sprintf("%.*f_%.*f", places, c.Latitude, places, c.Longitude)
}

type LocationSample struct {
	Coords         Coordinate `json:"coords"`
	Source         Source     `json:"source"`
	AccuracyMeters float64    `json:"accuracy_meters,omitempty"`
	ObservedAt     time.Time  `json:"observed_at"`
}

// School selects the Asr shadow-length rule.
type School string

const (
	SchoolStandard School = "Standard" // shadow length = 1x object height
	SchoolHanafi   School = "Hanafi"   // shadow length = 2x object height
)

// Convention is a named regional calculation rule set.
type Convention string

const (
	ConventionMoonsighting Convention = "MoonsightingCommittee"
	ConventionKarachi      Convention = "JamiaUloomIslamia"
	ConventionEgyptian     Convention = "Egyptian"
	ConventionUmmAlQura    Convention = "UmmAlQura"
	ConventionNorthAmerica Convention = "NorthAmerica"
	ConventionWorldLeague  Convention = "MuslimWorldLeague"
)

// MethodID maps a convention onto the numeric identifier the conversion
// service expects.
func (c Convention) MethodID() int {
	switch c {
	case ConventionKarachi:
		return 1
	case ConventionNorthAmerica:
		return 2
	case ConventionWorldLeague:
		return 3
	case ConventionUmmAlQura:
		return 4
	case ConventionEgyptian:
		return 5
	default:
		return 15 // Moonsighting Committee
	}
}

func (c Convention) Known() bool {
	switch c {
	case ConventionMoonsighting, ConventionKarachi, ConventionEgyptian,
		ConventionUmmAlQura, ConventionNorthAmerica, ConventionWorldLeague:
		return true
	}
	return false
}

type Settings struct {
	School     School     `json:"school"`
	Convention Convention `json:"convention"`
}

// EventID names the six daily events in schedule order.
type EventID string

const (
	EventFajr    EventID = "fajr"
	EventSunrise EventID = "sunrise"
	EventDhuhr   EventID = "dhuhr"
	EventAsr     EventID = "asr"
	EventMaghrib EventID = "maghrib"
	EventIsha    EventID = "isha"
)

type Event struct {
	ID   EventID   `json:"id"`
	Name string    `json:"name"`
	Time time.Time `json:"time"`
	// Secondary marks events (Sunrise) shown in the table but never used as
	// a countdown anchor.
	Secondary bool `json:"secondary,omitempty"`
}

// ScheduleDay is the immutable set of event instants for one calendar date
// at one coordinate, plus the following day's Fajr for rollover.
type ScheduleDay struct {
	Date       time.Time  `json:"date"`
	Coords     Coordinate `json:"coords"`
	School     School     `json:"school"`
	Convention Convention `json:"convention"`
	Events     []Event    `json:"events"`
	NextFajr   Event      `json:"next_fajr"`
}

// Event returns the event with the given id, or nil.
func (d *ScheduleDay) Event(id EventID) *Event {
	for i := range d.Events {
		if d.Events[i].ID == id {
			return &d.Events[i]
		}
	}
	return nil
}

// ScheduleState is a pure projection of a ScheduleDay at an instant. It is
// derived on every tick and never stored.
type ScheduleState struct {
	CurrentEventID EventID `json:"current_event_id,omitempty"`
	CurrentEvent   *Event  `json:"current_event,omitempty"`
	NextEvent      *Event  `json:"next_event,omitempty"`
	TimeRemaining  string  `json:"time_remaining"`
}

// CalendarLabel is the secondary-calendar date string for display.
// Estimated labels come from local arithmetic; authoritative ones from the
// conversion service.
type CalendarLabel struct {
	Text        string `json:"text"`
	IsEstimated bool   `json:"is_estimated"`
}

// HijriDate is the structured triple behind a calendar label.
type HijriDate struct {
	Year      int    `json:"year"`
	Month     int    `json:"month"` // 1-12
	Day       int    `json:"day"`
	MonthName string `json:"month_name"`
}

func (h HijriDate) Label() string {
	return fmt.Sprintf("%s %d, %d AH", h.MonthName, h.Day, h.Year)
}

// ForbiddenWindow is an advisory interval around a schedule event.
type ForbiddenWindow struct {
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
