package repository

import (
	"context"
	"fmt"

	"soil-advisor/internal/config"
	"soil-advisor/pkg/database"
	"soil-advisor/pkg/logging"
	"soil-advisor/pkg/metrics"
)

// DriverMemory selects the in-process log, which is lost on exit
const DriverMemory = "memory"

// Open builds the reading log selected by cfg.Driver. SQL stores are migrated
// up before use. The returned close function releases the connection and is
// never nil.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (ReadingRepository, func() error, error) {
	if cfg.Driver == DriverMemory {
		logger.Info(ctx, "[DB_INIT] Using in-memory reading log", logging.Fields{})
		return NewMemoryRepository(), func() error { return nil }, nil
	}

	db, err := database.Open(ctx, cfg.Connection(), logger, metricsCollector)
	if err != nil {
		return nil, nil, err
	}

	if _, err := db.Migrate(ctx, "up"); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to migrate reading log: %w", err)
	}

	return NewSQLRepository(db, logger, metricsCollector), db.Close, nil
}
