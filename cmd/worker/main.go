// Package main provides the entry point for the TimeBomb expiry worker.
//
// The worker is used when TIMEBOMB_SWEEP_IN_API is false. With Redis configured its
// rejection events reach WebSocket clients through the API instances' relays.
package main

import (
	"context"
	"os"

	"github.com/musudik/dropmybeat-api/internal/events"
	"github.com/musudik/dropmybeat-api/internal/requests"
	"github.com/musudik/dropmybeat-api/internal/shutdown"
	"github.com/musudik/dropmybeat-api/internal/store/postgres"
	"github.com/musudik/dropmybeat-api/internal/timebomb"
	"github.com/musudik/dropmybeat-api/pkg/config"
	"github.com/musudik/dropmybeat-api/pkg/logger"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Default().Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(logger.ParseLevel(cfg.LogLevel), cfg.JSONLogs()).WithComponent("worker")

	if cfg.StoreDriver != config.StoreDriverPostgres {
		log.Error("the worker needs a shared database", "driver", cfg.StoreDriver)
		os.Exit(1)
	}

	coordinator := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log.Logger),
	)

	st, err := postgres.NewPostgresStore(postgres.DefaultConfig(cfg.DatabaseURL), log.Logger)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	coordinator.Register(shutdown.NewCloserComponent("store", st))

	publisher := events.Discard
	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		coordinator.Register(shutdown.NewCloserComponent("redis", client))
		publisher = events.NewRedisPublisher(client, cfg.Redis.Channel, log.Logger)
	} else {
		log.Warn("REDIS_ADDR is not set; expiry events will not reach connected clients")
	}

	service := requests.NewService(st, publisher, log.Logger)
	sweeper := timebomb.NewSweeper(service, log.Logger,
		timebomb.WithInterval(cfg.TimeBomb.SweepInterval),
		timebomb.WithBatchSize(cfg.TimeBomb.SweepBatch),
	)
	coordinator.Register(shutdown.NewStopperComponent("timebomb-sweeper", sweeper))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := sweeper.Start(ctx); err != nil && ctx.Err() == nil {
			log.Error("sweeper exited", "error", err)
		}
	}()

	coordinator.WaitForSignal(ctx)
	cancel()
	log.Info("worker shutdown complete")
	os.Exit(coordinator.ExitCode())
}
