package scheduler

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"miqat/internal/services"
)

// Ticker drives the engine's once-per-second derivation: countdown,
// current/next event and midnight rollover all hang off this one schedule.
type Ticker struct {
	engine *services.Engine
	logger *zap.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewTicker(engine *services.Engine, logger *zap.Logger) *Ticker {
	return &Ticker{
		engine: engine,
		logger: logger,
	}
}

func (t *Ticker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return nil
	}

	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.cron = cron.New(cron.WithSeconds())
	if _, err := t.cron.AddFunc("* * * * * *", func() {
		t.engine.Tick(t.ctx)
	}); err != nil {
		t.cancel()
		return err
	}

	// Run once immediately so the first schedule computation does not wait
	// for the first tick.
	go t.engine.Tick(t.ctx)

	t.cron.Start()
	t.running = true
	t.logger.Info("Ticker started")
	return nil
}

// Stop halts the schedule, cancels in-flight work and waits for any running
// job to return. Safe to call twice.
func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return
	}
	t.cancel()
	<-t.cron.Stop().Done()
	t.running = false
	t.logger.Info("Ticker stopped")
}

// ForceRun triggers one immediate tick outside the schedule.
func (t *Ticker) ForceRun() {
	t.mu.Lock()
	ctx := t.ctx
	running := t.running
	t.mu.Unlock()

	if !running {
		return
	}
	go t.engine.Tick(ctx)
}
