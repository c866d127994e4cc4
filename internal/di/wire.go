package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/labormetrics/pulse/internal/clientdata"
	"github.com/labormetrics/pulse/internal/clients/fred"
	"github.com/labormetrics/pulse/internal/config"
	"github.com/labormetrics/pulse/internal/database"
	"github.com/labormetrics/pulse/internal/modules/analytics"
	"github.com/labormetrics/pulse/internal/modules/ingest"
	"github.com/labormetrics/pulse/internal/modules/runs"
	"github.com/labormetrics/pulse/internal/reliability"
	"github.com/labormetrics/pulse/internal/scheduler"
)

// Wire builds the full dependency graph: databases, repositories, the FRED
// client, services and background jobs.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, err
	}

	initializeRepositories(container, log)
	initializeServices(container, cfg, log)

	if err := initializeBackup(container, cfg, log); err != nil {
		container.Close()
		return nil, err
	}

	initializeJobs(container, log)

	return container, nil
}

func initializeRepositories(c *Container, log zerolog.Logger) {
	c.RawRepo = ingest.NewRawRepository(c.WarehouseDB.Conn(), log)
	c.AnalyticsRepo = analytics.NewRepository(c.WarehouseDB.Conn(), log)
	c.ClientDataRepo = clientdata.NewRepository(c.CacheDB.Conn())
	c.RunsRepo = runs.NewRepository(c.CacheDB.Conn(), log)
}

func initializeServices(c *Container, cfg *config.Config, log zerolog.Logger) {
	c.FredClient = fred.NewClient(cfg.FredAPIKey, c.ClientDataRepo, log)
	c.IngestService = ingest.NewService(c.FredClient, c.RawRepo, cfg.FredAPIKey, cfg.ObservationStart, log)
	c.Transformer = analytics.NewTransformer(c.RawRepo, c.AnalyticsRepo, log)
}

func initializeBackup(c *Container, cfg *config.Config, log zerolog.Logger) error {
	if cfg.Backup == nil || !cfg.Backup.Enabled {
		return nil
	}

	s3Client, err := reliability.NewS3Client(context.Background(), cfg.Backup, log)
	if err != nil {
		return fmt.Errorf("failed to initialize backup client: %w", err)
	}

	snapshots := reliability.NewSnapshotService(map[string]*database.DB{
		"warehouse": c.WarehouseDB,
		"cache":     c.CacheDB,
	}, log)

	c.BackupService = reliability.NewOffsiteBackupService(s3Client, snapshots, cfg.DataDir, cfg.Backup.Keep, log)
	return nil
}

func initializeJobs(c *Container, log zerolog.Logger) {
	c.PipelineJob = scheduler.NewPipelineJob(c.IngestService, c.Transformer, c.RunsRepo, log)
	c.CleanupJob = clientdata.NewCleanupJob(c.ClientDataRepo, log)
	if c.BackupService != nil {
		c.BackupJob = reliability.NewBackupJob(c.BackupService, log)
	}
}
