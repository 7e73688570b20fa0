package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"miqat/internal/models"
)

// coordPrecision is the resolver-level rounding used for schedule memo keys.
const coordPrecision = 4

// Astronomer converts (coordinate, date, convention, school) into the six
// event instants. The engine treats it as a black box and never inspects how
// the instants are derived.
type Astronomer interface {
	Timings(ctx context.Context, coords models.Coordinate, date time.Time, convention models.Convention, school models.School) (map[models.EventID]time.Time, error)
}

// eventOrder fixes the schedule order and display names.
var eventOrder = []struct {
	id        models.EventID
	name      string
	secondary bool
}{
	{models.EventFajr, "Fajr", false},
	{models.EventSunrise, "Sunrise", true},
	{models.EventDhuhr, "Dhuhr", false},
	{models.EventAsr, "Asr", false},
	{models.EventMaghrib, "Maghrib", false},
	{models.EventIsha, "Isha", false},
}

// ScheduleEngine owns ScheduleDay computation. Days are memoized on their
// key tuple; clock ticks re-derive state without touching the collaborator.
type ScheduleEngine struct {
	astro  Astronomer
	logger *zap.Logger

	mu   sync.Mutex
	memo map[string]*models.ScheduleDay
}

func NewScheduleEngine(astro Astronomer, logger *zap.Logger) *ScheduleEngine {
	return &ScheduleEngine{
		astro:  astro,
		logger: logger,
		memo:   make(map[string]*models.ScheduleDay),
	}
}

func dayKey(date time.Time, coords models.Coordinate, school models.School, convention models.Convention) string {
	return fmt.Sprintf("%s|%s|%s|%s",
		date.Format("2006-01-02"), coords.Key(coordPrecision), school, convention)
}

// ComputeDay returns the schedule for one date. The collaborator is invoked
// twice per distinct key tuple (the day itself plus the following day's
// Fajr) and never again for the same tuple.
func (e *ScheduleEngine) ComputeDay(ctx context.Context, date time.Time, coords models.Coordinate, school models.School, convention models.Convention) (*models.ScheduleDay, error) {
	key := dayKey(date, coords, school, convention)

	e.mu.Lock()
	if day, ok := e.memo[key]; ok {
		e.mu.Unlock()
		return day, nil
	}
	e.mu.Unlock()

	today, err := e.astro.Timings(ctx, coords, date, convention, school)
	if err != nil {
		return nil, eris.Wrap(err, "schedule: timings")
	}
	tomorrow, err := e.astro.Timings(ctx, coords, date.AddDate(0, 0, 1), convention, school)
	if err != nil {
		return nil, eris.Wrap(err, "schedule: next-day timings")
	}

	day := &models.ScheduleDay{
		Date:       date,
		Coords:     coords,
		School:     school,
		Convention: convention,
		Events:     make([]models.Event, 0, len(eventOrder)),
		NextFajr: models.Event{
			ID:   models.EventFajr,
			Name: "Fajr",
			Time: tomorrow[models.EventFajr],
		},
	}
	for _, def := range eventOrder {
		instant, ok := today[def.id]
		if !ok {
			return nil, eris.Errorf("schedule: collaborator omitted %s", def.id)
		}
		day.Events = append(day.Events, models.Event{
			ID:        def.id,
			Name:      def.name,
			Time:      instant,
			Secondary: def.secondary,
		})
	}

	e.mu.Lock()
	e.memo[key] = day
	e.mu.Unlock()

	e.logger.Info("Computed schedule day",
		zap.String("key", key),
		zap.Time("fajr", day.Events[0].Time),
		zap.Time("next_fajr", day.NextFajr.Time))
	return day, nil
}

// DeriveState projects a ScheduleDay onto an instant. Pure and cheap; called
// on every tick. Secondary events are shown in the table but never become
// the current anchor.
func DeriveState(day *models.ScheduleDay, now time.Time) models.ScheduleState {
	state := models.ScheduleState{TimeRemaining: "00:00:00"}
	if day == nil {
		return state
	}

	// Latest non-secondary event at or before now.
	for i := len(day.Events) - 1; i >= 0; i-- {
		ev := day.Events[i]
		if ev.Secondary {
			continue
		}
		if !ev.Time.After(now) {
			state.CurrentEventID = ev.ID
			current := ev
			state.CurrentEvent = &current
			break
		}
	}

	// First event after now, falling back to tomorrow's precomputed Fajr.
	for _, ev := range day.Events {
		if ev.Time.After(now) {
			next := ev
			state.NextEvent = &next
			break
		}
	}
	if state.NextEvent == nil {
		next := day.NextFajr
		state.NextEvent = &next
	}

	state.TimeRemaining = formatRemaining(state.NextEvent.Time, now)
	return state
}

// formatRemaining renders the countdown to target as HH:MM:SS, clamped at
// zero once the instant has passed.
func formatRemaining(target, now time.Time) string {
	diff := target.Sub(now)
	if diff <= 0 {
		return "00:00:00"
	}
	h := int(diff / time.Hour)
	m := int(diff % time.Hour / time.Minute)
	s := int(diff % time.Minute / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
