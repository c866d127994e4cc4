package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/labormetrics/pulse/internal/config"
	"github.com/labormetrics/pulse/internal/database"
)

// InitializeDatabases opens both databases and applies schemas.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// warehouse.db - raw observations and derived analytics
	warehouseDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/warehouse.db",
		Profile: database.ProfileWarehouse,
		Name:    "warehouse",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize warehouse database: %w", err)
	}
	container.WarehouseDB = warehouseDB

	// cache.db - source payload cache and run history, safe to delete
	cacheDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/cache.db",
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		warehouseDB.Close()
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	container.CacheDB = cacheDB

	for _, db := range []*database.DB{warehouseDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", db.Name(), err)
		}
		log.Info().Str("database", db.Name()).Str("path", db.Path()).Msg("Database ready")
	}

	return container, nil
}
