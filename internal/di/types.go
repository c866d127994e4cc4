// Package di provides dependency injection for Pulse: databases,
// repositories, services and background jobs are wired here so main stays
// thin and every component receives its dependencies via constructor.
package di

import (
	"github.com/labormetrics/pulse/internal/clientdata"
	"github.com/labormetrics/pulse/internal/clients/fred"
	"github.com/labormetrics/pulse/internal/database"
	"github.com/labormetrics/pulse/internal/modules/analytics"
	"github.com/labormetrics/pulse/internal/modules/ingest"
	"github.com/labormetrics/pulse/internal/modules/runs"
	"github.com/labormetrics/pulse/internal/reliability"
	"github.com/labormetrics/pulse/internal/scheduler"
)

// Container holds all wired dependencies.
type Container struct {
	// Databases
	WarehouseDB *database.DB
	CacheDB     *database.DB

	// Repositories
	RawRepo        *ingest.RawRepository
	AnalyticsRepo  *analytics.Repository
	ClientDataRepo *clientdata.Repository
	RunsRepo       *runs.Repository

	// Clients and services
	FredClient    *fred.Client
	IngestService *ingest.Service
	Transformer   *analytics.Transformer

	// Backup (nil when not configured)
	BackupService *reliability.OffsiteBackupService

	// Jobs
	PipelineJob *scheduler.PipelineJob
	CleanupJob  *clientdata.CleanupJob
	BackupJob   *reliability.BackupJob
}

// Close releases all database connections.
func (c *Container) Close() {
	if c.WarehouseDB != nil {
		c.WarehouseDB.Close()
	}
	if c.CacheDB != nil {
		c.CacheDB.Close()
	}
}
