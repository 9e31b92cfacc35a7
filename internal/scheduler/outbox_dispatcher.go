package scheduler

import (
	"context"
	"fmt"
	"time"

	"leadrouter/internal/outbox"
	"leadrouter/platform/config"
	"leadrouter/platform/logger"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxDispatcher drains the routing outbox: claims pending rows and hands
// each to the task queue for at-least-once delivery. A row that fails to
// enqueue flips back to pending for the next tick.
type OutboxDispatcher struct {
	client   *asynq.Client
	queue    string
	interval time.Duration
	repo     *outbox.Repository
	log      *logger.Logger
}

func NewOutboxDispatcher(cfg config.SchedulerConfig, pool *pgxpool.Pool, log *logger.Logger) (*OutboxDispatcher, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	interval := cfg.GetOutboxDispatchInterval()
	if interval <= 0 {
		interval = 2 * time.Second
	}

	return &OutboxDispatcher{
		client:   asynq.NewClient(opt),
		queue:    queue,
		interval: interval,
		repo:     outbox.New(pool),
		log:      log,
	}, nil
}

func (d *OutboxDispatcher) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil || d.repo == nil {
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

		records, err := d.repo.ClaimPending(ctx, 50)
		if err != nil {
			d.log.Warn("outbox claim failed", "error", err)
			continue
		}
		if len(records) == 0 {
			continue
		}

		for _, rec := range records {
			task, err := NewRoutingOutboxDueTask(RoutingOutboxDuePayload{
				OutboxID: rec.ID.String(),
				TenantID: rec.TenantID.String(),
			})
			if err != nil {
				msg := err.Error()
				_ = d.repo.MarkPending(ctx, rec.ID, &msg)
				continue
			}

			_, err = d.client.EnqueueContext(ctx, task, asynq.ProcessAt(rec.RunAt), asynq.Queue(d.queue))
			if err != nil {
				msg := err.Error()
				_ = d.repo.MarkPending(ctx, rec.ID, &msg)
				continue
			}
		}
	}
}
