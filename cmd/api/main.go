// Package main provides the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/musudik/dropmybeat-api/internal/api"
	"github.com/musudik/dropmybeat-api/internal/api/health"
	"github.com/musudik/dropmybeat-api/internal/auth"
	"github.com/musudik/dropmybeat-api/internal/events"
	"github.com/musudik/dropmybeat-api/internal/realtime"
	"github.com/musudik/dropmybeat-api/internal/requests"
	"github.com/musudik/dropmybeat-api/internal/shutdown"
	"github.com/musudik/dropmybeat-api/internal/store"
	"github.com/musudik/dropmybeat-api/internal/store/memory"
	pgstore "github.com/musudik/dropmybeat-api/internal/store/postgres"
	"github.com/musudik/dropmybeat-api/internal/timebomb"
	"github.com/musudik/dropmybeat-api/pkg/config"
	"github.com/musudik/dropmybeat-api/pkg/logger"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Default().Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(logger.ParseLevel(cfg.LogLevel), cfg.JSONLogs())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coordinator := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log.Logger),
	)

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "error", err, "driver", cfg.StoreDriver)
		os.Exit(1)
	}
	coordinator.Register(shutdown.NewCloserComponent("store", st))

	broker := events.NewBroker(log.WithComponent("broker").Logger)
	var publisher events.Publisher = broker
	var redisPinger health.Pinger

	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		coordinator.Register(shutdown.NewCloserComponent("redis", client))

		relay := events.NewRedisRelay(client, cfg.Redis.Channel, broker, log.WithComponent("relay").Logger)
		if err := relay.Start(ctx); err != nil {
			log.Error("failed to start redis relay", "error", err, "addr", cfg.Redis.Addr)
			os.Exit(1)
		}
		coordinator.Register(shutdown.NewStopperComponent("redis-relay", relay))

		publisher = events.NewRedisPublisher(client, cfg.Redis.Channel, log.Logger)
		redisPinger = health.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}

	authService := auth.NewService(&auth.Config{
		JWTSecret:        []byte(cfg.JWTSecret),
		TokenExpiry:      cfg.JWTExpiry,
		GuestTokenExpiry: cfg.GuestTokenExpiry,
	}, log.Logger)

	requestService := requests.NewService(st, publisher, log.WithComponent("requests").Logger,
		requests.WithTokenIssuer(authService),
	)

	if cfg.TimeBomb.SweepInAPI {
		sweeper := timebomb.NewSweeper(requestService, log.WithComponent("timebomb").Logger,
			timebomb.WithInterval(cfg.TimeBomb.SweepInterval),
			timebomb.WithBatchSize(cfg.TimeBomb.SweepBatch),
		)
		go func() {
			if err := sweeper.Start(ctx); err != nil {
				log.Error("timebomb sweeper exited", "error", err)
			}
		}()
		coordinator.Register(shutdown.NewStopperComponent("timebomb-sweeper", sweeper))
	}

	rt := realtime.NewService(broker, realtime.DefaultConfig(), log.WithComponent("realtime").Logger)
	coordinator.Register(shutdown.NewStopperComponent("realtime", rt))

	server := api.NewServer(cfg, api.Dependencies{
		Requests: requestService,
		Auth:     authService,
		Realtime: rt,
		Database: st,
		Redis:    redisPinger,
	}, log.Logger)
	// Registered last so it is the first component stopped.
	coordinator.Register(shutdown.NewHTTPServerComponent("http", server.HTTPServer()))

	serverErr := make(chan error, 1)
	go func() {
		log.Info("serving", "store", cfg.StoreDriver, "redis", cfg.Redis.Enabled())
		if err := server.Start(); err != nil {
			log.Error("server error", "error", err)
			serverErr <- err
			cancel()
		}
	}()

	coordinator.WaitForSignal(ctx)
	code := coordinator.ExitCode()
	select {
	case <-serverErr:
		code = 1
	default:
	}
	log.Info("server stopped", "exit_code", code)
	cancel()
	os.Exit(code)
}

func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (store.Store, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn("using in-memory store; data is lost on restart")
		return memory.NewStore(), nil
	}

	pg, err := pgstore.NewPostgresStore(pgstore.DefaultConfig(cfg.DatabaseURL), log.Logger)
	if err != nil {
		return nil, err
	}

	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := pg.Migrate(migrateCtx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("migrating: %w", err)
	}
	return pg, nil
}
