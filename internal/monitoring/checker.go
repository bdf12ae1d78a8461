package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/profile-dedupe/internal/model"
)

// DryRunFunc performs one dry run over the whole store.
type DryRunFunc func(ctx context.Context) (*model.Report, error)

// Checker runs periodic dry runs in the background and alerts when duplicate
// identities reappear.
type Checker struct {
	run      DryRunFunc
	alerter  *Alerter
	metrics  *Metrics
	interval time.Duration

	mu   sync.Mutex
	last *Snapshot
}

// NewChecker creates a drift checker. metrics may be nil.
func NewChecker(run DryRunFunc, alerter *Alerter, metrics *Metrics, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Checker{run: run, alerter: alerter, metrics: metrics, interval: interval}
}

// Run starts the check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting drift checker", zap.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("drift checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check performs one dry run and evaluates it.
func (c *Checker) Check(ctx context.Context) []Alert {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	r, err := c.run(ctx)
	if r == nil {
		log.Error("monitoring: drift dry run failed", zap.Error(err))
		return nil
	}
	if err != nil {
		log.Warn("monitoring: drift dry run reported an error", zap.Error(err))
	}

	snap := Collect(r)
	c.mu.Lock()
	c.last = snap
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.Observe(snap, r.Cancelled)
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: no drift detected", zap.Int("groups", snap.Groups))
		return nil
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: drift check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
	return alerts
}

// Last returns the snapshot of the most recent check, or nil.
func (c *Checker) Last() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
