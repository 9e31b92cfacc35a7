package scheduler

import (
	"context"
	"time"

	"leadrouter/platform/config"
	"leadrouter/platform/logger"
)

// SlaDispatcher ticks at the configured sweep interval and enqueues one
// sweep task per tick. Sweeps are idempotent, so an overlapping or repeated
// enqueue is harmless.
type SlaDispatcher struct {
	client   *Client
	interval time.Duration
	log      *logger.Logger
}

func NewSlaDispatcher(cfg config.SchedulerConfig, client *Client, log *logger.Logger) *SlaDispatcher {
	interval := cfg.GetSlaSweepInterval()
	if interval <= 0 {
		interval = time.Minute
	}
	return &SlaDispatcher{client: client, interval: interval, log: log}
}

func (d *SlaDispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil {
		return
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := d.client.EnqueueSlaSweep(ctx); err != nil {
			d.log.Warn("sla sweep enqueue failed", "error", err)
		}
	}
}
