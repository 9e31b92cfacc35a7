package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadrouter/internal/events"
	"leadrouter/internal/routing"
	"leadrouter/internal/scheduler"
	"leadrouter/internal/tenants"
	"leadrouter/platform/cache"
	"leadrouter/platform/config"
	"leadrouter/platform/db"
	"leadrouter/platform/logger"
	"leadrouter/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	tenantCache, err := cache.New(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure(), cfg.GetTenantCacheTTL())
	if err != nil {
		log.Error("failed to initialize tenant cache", "error", err)
		panic("failed to initialize tenant cache: " + err.Error())
	}
	if tenantCache != nil {
		defer func() { _ = tenantCache.Close() }()
	}
	tenantService := tenants.NewService(tenants.New(pool), tenantCache)

	// Worker-side routing wiring; the HTTP surface is never mounted here.
	routingModule, err := routing.NewModule(routing.Deps{
		Pool:      pool,
		Bus:       eventBus,
		Logger:    log,
		Config:    cfg,
		Tenants:   tenantService,
		Validator: validator.New(),
	})
	if err != nil {
		log.Error("failed to initialize routing module", "error", err)
		panic("failed to initialize routing module: " + err.Error())
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	slaDispatcher := scheduler.NewSlaDispatcher(cfg, client, log)
	go slaDispatcher.Run(ctx)

	outboxDispatcher, err := scheduler.NewOutboxDispatcher(cfg, pool, log)
	if err != nil {
		log.Error("failed to initialize outbox dispatcher", "error", err)
		panic("failed to initialize outbox dispatcher: " + err.Error())
	}
	defer func() { _ = outboxDispatcher.Close() }()
	go outboxDispatcher.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, pool, routingModule.Service(), eventBus, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
