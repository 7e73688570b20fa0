package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"miqat/internal/models"
	"miqat/internal/storage"
)

const lastLocationKey = "last_location"

// IPLocator is the provider-chain lookup the resolver falls back to.
type IPLocator interface {
	Lookup(ctx context.Context) (models.Coordinate, string, error)
}

type ResolverConfig struct {
	Default                 models.Coordinate
	GPSHighTimeout          time.Duration
	GPSLowTimeout           time.Duration
	AccuracyThresholdMeters float64
}

// Resolver owns the current LocationSample. GPS, the IP chain and the
// permission watcher all race to update it; every result goes through the
// apply reducer, which enforces tier precedence against the sample that is
// current at arrival time, not at issue time.
type Resolver struct {
	cfg     ResolverConfig
	store   storage.Store
	chain   IPLocator
	gps     GPSProvider
	watcher PermissionWatcher
	logger  *zap.Logger

	mu       sync.Mutex
	sample   models.LocationSample
	advisory string
	loading  bool
	cancel   context.CancelFunc
	pending  *resolution

	release func()
	wg      sync.WaitGroup
}

// resolution tracks one in-flight Resolve so total failure of both sources
// can settle on the default exactly once.
type resolution struct {
	gpsDone bool
	ipDone  bool
	applied bool
}

func NewResolver(cfg ResolverConfig, store storage.Store, chain IPLocator, gps GPSProvider, watcher PermissionWatcher, logger *zap.Logger) *Resolver {
	r := &Resolver{
		cfg:     cfg,
		store:   store,
		chain:   chain,
		gps:     gps,
		watcher: watcher,
		logger:  logger,
		sample: models.LocationSample{
			Coords:     cfg.Default,
			Source:     models.SourceDefault,
			ObservedAt: time.Now(),
		},
		loading: true,
	}
	r.hydrate()
	return r
}

// hydrate warm-starts from the persisted last-known sample so the default
// location never flashes for returning users.
func (r *Resolver) hydrate() {
	raw, err := r.store.Get(lastLocationKey)
	if err != nil {
		return
	}
	var saved models.LocationSample
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		r.logger.Warn("Discarding corrupt persisted location", zap.Error(err))
		return
	}
	if !saved.Coords.Valid() || saved.Source.Rank() <= models.SourceDefault.Rank() {
		return
	}
	r.sample = saved
	r.loading = false
	r.logger.Info("Warm-started from persisted location",
		zap.String("source", string(saved.Source)),
		zap.Float64("lat", saved.Coords.Latitude),
		zap.Float64("lon", saved.Coords.Longitude))
}

// Start begins permission watching and kicks off the first resolution.
func (r *Resolver) Start(ctx context.Context) {
	if r.watcher != nil {
		states, release, err := r.watcher.Watch(ctx)
		if err != nil {
			r.logger.Warn("Permission watcher unavailable", zap.Error(err))
		} else {
			r.release = release
			r.wg.Add(1)
			go r.watchPermissions(ctx, states)
		}
	}
	r.Resolve(ctx)
}

// Resolve races a GPS acquisition against the IP provider chain. A new call
// supersedes and cancels any resolution still in flight.
func (r *Resolver) Resolve(ctx context.Context) {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	rctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	res := &resolution{}
	r.pending = res
	if r.sample.Source == models.SourceDefault {
		r.loading = true
	}
	r.mu.Unlock()

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		ok := r.resolveGPS(rctx)
		r.finish(rctx, res, true, ok)
	}()
	go func() {
		defer r.wg.Done()
		ok := r.resolveIP(rctx)
		r.finish(rctx, res, false, ok)
	}()
}

// resolveGPS requests a high-accuracy fix and retries once at low accuracy
// on timeout or position-unavailable. Denial is advisory only.
func (r *Resolver) resolveGPS(ctx context.Context) bool {
	fix, err := r.currentFix(ctx, GPSRequest{HighAccuracy: true, Timeout: r.cfg.GPSHighTimeout})
	if err != nil {
		switch GPSCode(err) {
		case GPSTimeout, GPSPositionUnavailable:
			r.logger.Debug("High-accuracy GPS failed, retrying at low accuracy", zap.Error(err))
			fix, err = r.currentFix(ctx, GPSRequest{HighAccuracy: false, Timeout: r.cfg.GPSLowTimeout})
		case GPSPermissionDenied:
			r.logger.Info("GPS permission denied, deferring to network location")
			r.note("GPS permission denied; using approximate location")
			return false
		}
	}
	if err != nil {
		r.logger.Debug("GPS acquisition failed", zap.Error(err))
		return false
	}

	advisory := ""
	if r.cfg.AccuracyThresholdMeters > 0 && fix.AccuracyMeters > r.cfg.AccuracyThresholdMeters {
		advisory = "low-accuracy GPS fix"
	}
	return r.apply(models.LocationSample{
		Coords:         fix.Coords,
		Source:         models.SourceGPS,
		AccuracyMeters: fix.AccuracyMeters,
		ObservedAt:     time.Now(),
	}, advisory)
}

func (r *Resolver) currentFix(ctx context.Context, req GPSRequest) (GPSFix, error) {
	fixCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		fixCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	return r.gps.Current(fixCtx, req)
}

func (r *Resolver) resolveIP(ctx context.Context) bool {
	coords, provider, err := r.chain.Lookup(ctx)
	if err != nil {
		r.logger.Debug("IP provider chain failed", zap.Error(err))
		return false
	}
	applied := r.apply(models.LocationSample{
		Coords:     coords,
		Source:     models.SourceIP,
		ObservedAt: time.Now(),
	}, "")
	if applied {
		r.logger.Debug("Applied IP location", zap.String("provider", provider))
	}
	return applied
}

// finish settles a resolution on the default coordinate once both sources
// have failed.
func (r *Resolver) finish(ctx context.Context, res *resolution, gps, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gps {
		res.gpsDone = true
	} else {
		res.ipDone = true
	}
	if ok {
		res.applied = true
	}
	if ctx.Err() != nil || r.pending != res {
		return // superseded
	}
	if res.gpsDone && res.ipDone && !res.applied {
		if r.sample.Source == models.SourceDefault {
			r.sample = models.LocationSample{
				Coords:     r.cfg.Default,
				Source:     models.SourceDefault,
				ObservedAt: time.Now(),
			}
			r.advisory = "location unavailable; using default location"
		}
		r.loading = false
		r.logger.Warn("All location sources failed, settled on default")
	}
}

// apply is the single arbitration point: a candidate is accepted only if its
// tier is at least the tier of the sample current right now, so late
// lower-tier responses can never clobber a better fix.
func (r *Resolver) apply(candidate models.LocationSample, advisory string) bool {
	r.mu.Lock()
	if candidate.Source.Rank() < r.sample.Source.Rank() {
		r.mu.Unlock()
		r.logger.Debug("Discarding stale lower-tier location",
			zap.String("candidate", string(candidate.Source)),
			zap.String("current", string(r.sample.Source)))
		return false
	}
	r.sample = candidate
	r.advisory = advisory
	r.loading = false
	r.mu.Unlock()

	r.persist(candidate)
	return true
}

// applyForced bypasses the tier guard. Only permission revocation uses it.
func (r *Resolver) applyForced(candidate models.LocationSample, advisory string) {
	r.mu.Lock()
	r.sample = candidate
	r.advisory = advisory
	r.loading = false
	r.mu.Unlock()

	r.persist(candidate)
}

func (r *Resolver) persist(sample models.LocationSample) {
	if sample.Source == models.SourceDefault {
		return
	}
	raw, err := json.Marshal(sample)
	if err != nil {
		return
	}
	if err := r.store.Set(lastLocationKey, string(raw)); err != nil {
		// Storage failures degrade to cold starts, nothing more.
		r.logger.Debug("Failed to persist location", zap.Error(err))
	}
}

// note records an advisory without touching the sample.
func (r *Resolver) note(msg string) {
	r.mu.Lock()
	r.advisory = msg
	r.mu.Unlock()
}

func (r *Resolver) watchPermissions(ctx context.Context, states <-chan PermissionState) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case state, open := <-states:
			if !open {
				return
			}
			r.onPermissionChange(ctx, state)
		}
	}
}

func (r *Resolver) onPermissionChange(ctx context.Context, state PermissionState) {
	r.logger.Info("Geolocation permission changed", zap.String("state", string(state)))
	switch state {
	case PermissionGranted:
		// Re-acquire even after a previous denial.
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.resolveGPS(ctx)
		}()
	case PermissionDenied:
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.fallbackFromDenial(ctx)
		}()
	}
}

// fallbackFromDenial downgrades an existing GPS sample after the user
// revokes permission: the chain result wins if it exists, else the default.
func (r *Resolver) fallbackFromDenial(ctx context.Context) {
	const advisory = "GPS permission revoked; using approximate location"
	coords, _, err := r.chain.Lookup(ctx)
	if err != nil {
		r.applyForced(models.LocationSample{
			Coords:     r.cfg.Default,
			Source:     models.SourceDefault,
			ObservedAt: time.Now(),
		}, advisory)
		return
	}
	r.applyForced(models.LocationSample{
		Coords:     coords,
		Source:     models.SourceIP,
		ObservedAt: time.Now(),
	}, advisory)
}

// Snapshot returns the current sample plus advisory and loading flags.
func (r *Resolver) Snapshot() (models.LocationSample, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sample, r.advisory, r.loading
}

// Close cancels in-flight work, releases the permission subscription and
// waits for goroutines to drain.
func (r *Resolver) Close() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()
	if r.release != nil {
		r.release()
	}
	r.wg.Wait()
}
