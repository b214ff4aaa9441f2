package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/wahidkadwaikar/sync-storage/storage"
)

const checkTimeout = 5 * time.Second

// Checker polls a storage adapter on an interval and feeds the results into
// a Monitor. An optional report hook receives each probe outcome, which the
// process wires to the backend-up gauge.
type Checker struct {
	store    storage.Store
	backend  string
	interval time.Duration
	monitor  *Monitor
	onReport func(up bool)
	logger   *slog.Logger
}

// NewChecker builds a Checker. A zero interval defaults to 15 seconds;
// onReport may be nil.
func NewChecker(store storage.Store, backend string, interval time.Duration,
	monitor *Monitor, onReport func(up bool), logger *slog.Logger) *Checker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		store:    store,
		backend:  backend,
		interval: interval,
		monitor:  monitor,
		onReport: onReport,
		logger:   logger.With("component", "health", "backend", backend),
	}
}

// CheckNow runs one probe and records the result.
func (c *Checker) CheckNow(ctx context.Context) Status {
	probeCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	hs := c.store.Health(probeCtx)
	status := FromStoreHealth(c.backend, hs)
	c.monitor.Update(c.backend, status)
	if c.onReport != nil {
		c.onReport(hs.OK)
	}
	if !hs.OK {
		c.logger.Warn("backend health probe failed", "details", hs.Details)
	}
	return status
}

// Run probes immediately and then on every interval tick until the context
// is cancelled.
func (c *Checker) Run(ctx context.Context) {
	c.CheckNow(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CheckNow(ctx)
		}
	}
}
