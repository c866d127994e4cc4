// Package main is the entry point for Pulse, a labor-market indicator
// warehouse. It ingests observation series from FRED into a local SQLite
// warehouse, derives analytics from them on every run, and serves both over
// a REST API. A cron scheduler drives the weekly ingest+transform cycle,
// cache cleanup and optional offsite backups.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labormetrics/pulse/internal/config"
	"github.com/labormetrics/pulse/internal/database"
	"github.com/labormetrics/pulse/internal/di"
	analyticshandlers "github.com/labormetrics/pulse/internal/modules/analytics/handlers"
	cataloghandlers "github.com/labormetrics/pulse/internal/modules/catalog/handlers"
	ingesthandlers "github.com/labormetrics/pulse/internal/modules/ingest/handlers"
	"github.com/labormetrics/pulse/internal/scheduler"
	"github.com/labormetrics/pulse/internal/server"
	"github.com/labormetrics/pulse/pkg/logger"
)

const (
	cacheCleanupSchedule = "0 15 * * * *"  // hourly at :15
	backupSchedule       = "0 0 2 * * SUN" // Sunday 02:00, before Monday's ingest
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting Pulse")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	if cfg.FredAPIKey == "" {
		log.Warn().Msg("FRED_API_KEY not set - ingestion will fail until it is configured")
	}

	// HTTP handlers
	ingestHandler := ingesthandlers.NewHandler(container.IngestService, log)
	analyticsHandler := analyticshandlers.NewHandler(container.Transformer, container.AnalyticsRepo, log)
	catalogHandler := cataloghandlers.NewHandler(log)
	systemHandlers := server.NewSystemHandlers(
		log,
		cfg.DataDir,
		[]*database.DB{container.WarehouseDB, container.CacheDB},
		container.RunsRepo,
		container.AnalyticsRepo,
	)

	srv := server.New(server.Config{
		Log:              log,
		WarehouseDB:      container.WarehouseDB,
		CacheDB:          container.CacheDB,
		Config:           cfg,
		IngestHandler:    ingestHandler,
		AnalyticsHandler: analyticsHandler,
		CatalogHandler:   catalogHandler,
		SystemHandlers:   systemHandlers,
	})
	srv.SetJobs(container.PipelineJob, container.BackupJob)

	// Background jobs
	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.IngestSchedule, container.PipelineJob); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.IngestSchedule).Msg("Failed to register pipeline job")
	}
	if err := sched.AddJob(cacheCleanupSchedule, container.CleanupJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cache cleanup job")
	}
	if container.BackupJob != nil {
		if err := sched.AddJob(backupSchedule, container.BackupJob); err != nil {
			log.Fatal().Err(err).Msg("Failed to register backup job")
		}
	}
	srv.SetSchedule(sched)

	sched.Start()
	defer sched.Stop()

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
