package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"leadrouter/internal/events"
	"leadrouter/internal/outbox"
	"leadrouter/internal/routing/sla"
	"leadrouter/platform/config"
	"leadrouter/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SlaSweeper runs one breach sweep; the routing service implements it.
type SlaSweeper interface {
	ProcessSlaTimers(ctx context.Context, tenantID *uuid.UUID) (sla.SweepResult, error)
}

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	outbox  *outbox.Repository
	sweeper SlaSweeper
	bus     events.Bus
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, pool *pgxpool.Pool, sweeper SlaSweeper, bus events.Bus, log *logger.Logger) (*Worker, error) {
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

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:  server,
		mux:     mux,
		outbox:  outbox.New(pool),
		sweeper: sweeper,
		bus:     bus,
		log:     log,
	}

	mux.HandleFunc(TaskSlaSweep, w.handleSlaSweep)
	mux.HandleFunc(TaskRoutingOutboxDue, w.handleRoutingOutboxDue)

	return w, nil
}

func (w *Worker) handleSlaSweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseSlaSweepPayload(task)
	if err != nil {
		return err
	}

	var tenantID *uuid.UUID
	if payload.TenantID != "" {
		parsed, err := uuid.Parse(payload.TenantID)
		if err != nil {
			return err
		}
		tenantID = &parsed
	}

	_, err = w.sweeper.ProcessSlaTimers(ctx, tenantID)
	return err
}

// handleRoutingOutboxDue re-reads the claimed row and publishes it on the
// in-process bus. Delivery is at-least-once; a failed publish leaves the row
// failed with the error recorded for operator retry.
func (w *Worker) handleRoutingOutboxDue(ctx context.Context, task *asynq.Task) error {
	if w.bus == nil {
		return nil
	}

	payload, err := ParseRoutingOutboxDuePayload(task)
	if err != nil {
		return err
	}

	outboxID, err := uuid.Parse(payload.OutboxID)
	if err != nil {
		return err
	}

	if err := w.outbox.MarkProcessing(ctx, outboxID); err != nil {
		return err
	}

	rec, err := w.outbox.GetByID(ctx, outboxID)
	if err != nil {
		return err
	}

	event, err := eventFromRecord(rec)
	if err != nil {
		_ = w.outbox.MarkFailed(ctx, outboxID, err.Error())
		return err
	}

	if err := w.bus.PublishSync(ctx, event); err != nil {
		_ = w.outbox.MarkFailed(ctx, outboxID, err.Error())
		return err
	}

	return w.outbox.MarkSucceeded(ctx, outboxID)
}

// eventFromRecord rehydrates a stored outbox row into its typed bus event.
func eventFromRecord(rec outbox.Record) (events.Event, error) {
	base := events.BaseEvent{Timestamp: rec.RunAt}

	switch rec.EventName {
	case events.NameLeadRouted:
		var event events.LeadRouted
		if err := json.Unmarshal(rec.Payload, &event); err != nil {
			return nil, fmt.Errorf("decode %s: %w", rec.EventName, err)
		}
		event.BaseEvent = base
		return event, nil
	case events.NameSlaTimerBreached:
		var event events.SlaTimerBreached
		if err := json.Unmarshal(rec.Payload, &event); err != nil {
			return nil, fmt.Errorf("decode %s: %w", rec.EventName, err)
		}
		event.BaseEvent = base
		return event, nil
	case events.NameSlaTimerSatisfied:
		var event events.SlaTimerSatisfied
		if err := json.Unmarshal(rec.Payload, &event); err != nil {
			return nil, fmt.Errorf("decode %s: %w", rec.EventName, err)
		}
		event.BaseEvent = base
		return event, nil
	case events.NameApprovalResolved:
		var event events.ApprovalResolved
		if err := json.Unmarshal(rec.Payload, &event); err != nil {
			return nil, fmt.Errorf("decode %s: %w", rec.EventName, err)
		}
		event.BaseEvent = base
		return event, nil
	default:
		return nil, fmt.Errorf("unknown outbox event %q", rec.EventName)
	}
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
