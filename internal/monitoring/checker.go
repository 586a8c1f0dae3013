// Package monitoring exposes Prometheus metrics and a background checker
// that keeps the store health gauge and the hazard catalog current.
package monitoring

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Pinger reports store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Refresher reloads cached curves and hazard indexes.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Checker pings the store on every tick and, when a refresher is set,
// reloads the catalog every refreshEvery ticks.
type Checker struct {
	store        Pinger
	refresher    Refresher
	metrics      *Metrics
	clock        clockwork.Clock
	interval     time.Duration
	refreshEvery int
}

// NewChecker creates a background checker. refresher may be nil.
func NewChecker(store Pinger, refresher Refresher, metrics *Metrics, interval time.Duration, refreshEvery int) *Checker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Checker{
		store:        store,
		refresher:    refresher,
		metrics:      metrics,
		clock:        clockwork.NewRealClock(),
		interval:     interval,
		refreshEvery: refreshEvery,
	}
}

// WithClock swaps the time source.
func (c *Checker) WithClock(clk clockwork.Clock) *Checker {
	c.clock = clk
	return c
}

// Run blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting checker",
		zap.Duration("interval", c.interval),
		zap.Int("refresh_every", c.refreshEvery),
	)

	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			log.Info("checker stopped")
			return
		case <-ticker.Chan():
			ticks++
			c.check(ctx, log, ticks)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger, tick int) {
	if err := c.store.Ping(ctx); err != nil {
		c.metrics.StoreUp.Set(0)
		log.Error("monitoring: store ping failed", zap.Error(err))
		return
	}
	c.metrics.StoreUp.Set(1)

	if c.refresher == nil || c.refreshEvery <= 0 || tick%c.refreshEvery != 0 {
		return
	}
	if err := c.refresher.Refresh(ctx); err != nil {
		log.Error("monitoring: catalog refresh failed", zap.Error(err))
		return
	}
	log.Debug("monitoring: catalog refreshed")
}
