// Package main provides the game server binary: the websocket hub for game
// clients plus the broker, history cache, and session store it coordinates.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/battletanks/internal/broker"
	"github.com/cory-johannsen/battletanks/internal/config"
	"github.com/cory-johannsen/battletanks/internal/frontend/ws"
	"github.com/cory-johannsen/battletanks/internal/game/dice"
	"github.com/cory-johannsen/battletanks/internal/game/occupancy"
	"github.com/cory-johannsen/battletanks/internal/game/powerup"
	"github.com/cory-johannsen/battletanks/internal/game/session"
	"github.com/cory-johannsen/battletanks/internal/gameserver"
	"github.com/cory-johannsen/battletanks/internal/observability"
	"github.com/cory-johannsen/battletanks/internal/server"
	"github.com/cory-johannsen/battletanks/internal/storage/history"
	"github.com/cory-johannsen/battletanks/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	healthInterval := flag.Duration("health-interval", 30*time.Second, "database health check interval")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting game server",
		zap.String("addr", cfg.Transport.Addr()),
		zap.String("path", cfg.Transport.Path),
	)

	// Connect to PostgreSQL for session occupancy
	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)
	sessionRepo := pool.Sessions()

	// Optional dependencies degrade to no-ops
	publisher := broker.New(cfg.Broker, observability.Component(logger, "broker"))
	cache := history.New(ctx, cfg.Cache, observability.Component(logger, "history"))

	var src dice.Source
	if cfg.Game.RandomSeed != 0 {
		src = dice.NewSeededSource(cfg.Game.RandomSeed)
		logger.Info("using seeded randomness", zap.Uint64("seed", cfg.Game.RandomSeed))
	} else {
		src = dice.NewCryptoSource()
	}

	coordLogger := observability.Component(logger, "coordinator")
	coord := gameserver.NewCoordinator(gameserver.Deps{
		Registry:   session.NewRegistry(),
		Hub:        gameserver.NewHub(cfg.Transport.OutboxSize, coordLogger),
		Publisher:  publisher,
		History:    cache,
		Spawner:    powerup.NewSpawner(publisher, cache, src, observability.Component(logger, "powerup")),
		Reconciler: occupancy.NewReconciler(sessionRepo, cfg.Game.ReconcileTimeout, observability.Component(logger, "occupancy")),
		Dice:       src,
	}, cfg.Game, cfg.Cache.ReplayCount, coordLogger)

	health := ws.NewHealthHandler(ws.Probes{
		Broker:   publisher.Connected,
		Cache:    cache.IsAvailable,
		Database: pool.Probe(2 * time.Second),
	}, 3*time.Second)
	historyAPI := ws.NewHistoryHandler(cache, cfg.Cache.ReplayCount)
	transport := ws.NewServer(cfg.Transport, coord, health, historyAPI, observability.Component(logger, "transport"))

	// Wire lifecycle
	lifecycle := server.NewLifecycle(logger, 10*time.Second)
	lifecycle.Add("transport", &server.FuncService{
		StartFn: transport.Start,
		StopFn: func() {
			transport.Stop()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := coord.Shutdown(shutdownCtx); err != nil {
				logger.Warn("coordinator shutdown", zap.Error(err))
			}
		},
	})
	lifecycle.Add("db-health", server.NewPeriodic(*healthInterval, func(ctx context.Context) {
		if err := pool.Health(ctx, 5*time.Second); err != nil {
			logger.Warn("database health check failed", zap.Error(err))
			return
		}
		logger.Debug("database healthy", zap.Int32("in_use", pool.InUse()))
	}))
	lifecycle.AddCloser("postgres", pool.Close)
	lifecycle.AddCloser("broker", publisher.Close)
	if c, ok := cache.(*history.RedisCache); ok {
		lifecycle.AddCloser("history", func() {
			if err := c.Close(); err != nil {
				logger.Warn("closing history cache", zap.Error(err))
			}
		})
	}

	logger.Info("game server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.Bool("broker", publisher.Connected()),
		zap.Bool("cache", cache.IsAvailable(ctx)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
