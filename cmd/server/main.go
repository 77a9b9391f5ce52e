// Package main is the entry point for the bondflow fixed-income analytics
// service. It projects bond cashflows, solves yields and risk measures, and
// aggregates customer portfolios over an HTTP API.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dkastanis/bondflow/internal/config"
	"github.com/dkastanis/bondflow/internal/database"
	"github.com/dkastanis/bondflow/internal/modules/analytics"
	"github.com/dkastanis/bondflow/internal/modules/cashflows"
	"github.com/dkastanis/bondflow/internal/modules/portfolio"
	"github.com/dkastanis/bondflow/internal/modules/simulation"
	"github.com/dkastanis/bondflow/internal/modules/snapshots"
	"github.com/dkastanis/bondflow/internal/modules/universe"
	"github.com/dkastanis/bondflow/internal/scheduler"
	"github.com/dkastanis/bondflow/internal/server"
	"github.com/dkastanis/bondflow/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting bondflow")

	// Databases:
	// - portfolio.db: reference data and customer holdings
	// - cache.db: ephemeral snapshot payloads
	portfolioDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "portfolio.db"),
		Profile: database.ProfileStandard,
		Name:    "portfolio",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open portfolio database")
	}
	defer portfolioDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	for _, db := range []*database.DB{portfolioDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("db", db.Name()).Msg("Failed to migrate database")
		}
	}
	log.Info().Msg("Databases initialized")

	// Repositories
	securityRepo := universe.NewSecurityRepository(portfolioDB.Conn(), log)
	offeringRepo := universe.NewOfferingRepository(portfolioDB.Conn(), securityRepo, log)
	holdingRepo := portfolio.NewHoldingRepository(portfolioDB.Conn(), securityRepo, log)
	snapshotRepo := snapshots.NewRepository(cacheDB.Conn(), log)

	// Engine services
	projector := cashflows.NewProjector(log)
	analyticsService := analytics.NewService(projector, log)
	aggregator := portfolio.NewAggregator(projector, log)
	simulator := simulation.NewSimulator(holdingRepo, offeringRepo, aggregator, log)

	// Scheduler with the daily snapshot job
	sched := scheduler.New(log)
	snapshotJob := snapshots.NewJob(holdingRepo, aggregator, snapshotRepo, log)
	if err := sched.AddJob(cfg.SnapshotSchedule, snapshotJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register snapshot job")
	}
	sched.Start()

	// HTTP server
	srv := server.New(server.Config{
		Log:         log,
		Config:      cfg,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
		Holdings:    holdingRepo,
		Securities:  securityRepo,
		Offerings:   offeringRepo,
		Projector:   projector,
		Analytics:   analyticsService,
		Aggregator:  aggregator,
		Simulator:   simulator,
		Snapshots:   snapshotRepo,
		SnapshotJob: snapshotJob,
		Scheduler:   sched,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("bondflow ready")

	// Block until SIGINT or SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
}
