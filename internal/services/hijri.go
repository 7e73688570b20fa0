package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"miqat/internal/models"
)

// HijriConverter is the external date-conversion service.
type HijriConverter interface {
	HijriDate(ctx context.Context, date time.Time, coords models.Coordinate, convention models.Convention, adjustment int) (models.HijriDate, error)
}

// Reconciler produces the secondary-calendar label: an immediate tabular
// estimate, progressively replaced by the authoritative service value. The
// secondary calendar's day flips at sunset, not midnight.
type Reconciler struct {
	converter     HijriConverter
	logger        *zap.Logger
	karachiOffset int

	mu       sync.Mutex
	cache    map[string]string // authoritative labels, kept for the session
	inflight map[string]bool
	failed   map[string]bool // keys whose fetch failed; never retried this session

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

// NewReconciler wires the conversion service. karachiOffset is the fixed
// day correction for conventions that run ahead of local sighting.
func NewReconciler(converter HijriConverter, karachiOffset int, logger *zap.Logger) *Reconciler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		converter:     converter,
		logger:        logger,
		karachiOffset: karachiOffset,
		cache:         make(map[string]string),
		inflight:      make(map[string]bool),
		failed:        make(map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
		now:           time.Now,
	}
}

// Label returns the calendar label for the viewed date. Cache hits are
// authoritative and never touch the network; misses return the tabular
// estimate immediately and fetch the authoritative value in the background.
func (r *Reconciler) Label(date time.Time, coords models.Coordinate, convention models.Convention, sunset time.Time) models.CalendarLabel {
	effective := r.effectiveDate(date, sunset)

	offset := 0
	if convention == models.ConventionKarachi {
		offset = r.karachiOffset
	}

	key := cacheKey(coords, convention, effective)

	r.mu.Lock()
	if text, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return models.CalendarLabel{Text: text, IsEstimated: false}
	}
	fetch := !r.inflight[key] && !r.failed[key]
	if fetch {
		r.inflight[key] = true
	}
	r.mu.Unlock()

	if fetch {
		r.wg.Add(1)
		go r.fetchAuthoritative(key, effective, coords, convention, offset)
	}

	estimate := tabularHijri(effective.AddDate(0, 0, offset))
	return models.CalendarLabel{Text: estimate.Label(), IsEstimated: true}
}

// fetchAuthoritative fills the session cache. Failure is a silent degrade:
// the estimate stays up and no retry is scheduled.
func (r *Reconciler) fetchAuthoritative(key string, effective time.Time, coords models.Coordinate, convention models.Convention, offset int) {
	defer r.wg.Done()

	hijri, err := r.converter.HijriDate(r.ctx, effective, coords, convention, offset)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, key)

	if err != nil {
		// One attempt per key per session: the estimate stays up and the
		// key is never fetched again, so ticks do not hammer the service.
		r.failed[key] = true
		r.logger.Warn("Hijri conversion failed, keeping estimate",
			zap.String("key", key),
			zap.Error(err))
		return
	}
	if r.ctx.Err() != nil {
		return // torn down while in flight
	}
	r.cache[key] = hijri.Label()
	r.logger.Debug("Cached authoritative hijri date",
		zap.String("key", key),
		zap.String("label", hijri.Label()))
}

// effectiveDate advances the viewed date by one when it is the real current
// day and the wall clock has reached that day's sunset.
func (r *Reconciler) effectiveDate(date time.Time, sunset time.Time) time.Time {
	now := r.now()
	isToday := now.Year() == date.Year() && now.YearDay() == date.YearDay()
	if isToday && !sunset.IsZero() && !now.Before(sunset) {
		return date.AddDate(0, 0, 1)
	}
	return date
}

func cacheKey(coords models.Coordinate, convention models.Convention, effective time.Time) string {
	return fmt.Sprintf("%.2f|%.2f|%s|%s",
		coords.Latitude, coords.Longitude, convention, effective.Format("2006-01-02"))
}

// Close aborts any in-flight conversion and waits for workers to drain.
func (r *Reconciler) Close() {
	r.cancel()
	r.wg.Wait()
}
