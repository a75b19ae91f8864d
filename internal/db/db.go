package db

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vending-panel-backend/config"
	"vending-panel-backend/internal/tree"
)

// Init opens the SQL database behind DB_URL and migrates the tree table.
func Init(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	backend, err := cfg.Backend()
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch backend {
	case config.BackendPostgres:
		dialector = postgres.Open(cfg.DatabaseDSN())
	case config.BackendSQLite:
		dialector = sqlite.Open(cfg.DatabaseDSN())
	default:
		return nil, fmt.Errorf("backend %q is not a SQL database", backend)
	}

	level := logger.Warn
	if cfg.Database.LogQueries {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if backend == config.BackendSQLite {
		// sqlite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	if cfg.Database.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetimeMinutes) * time.Minute)
	}

	log.Info("running database migrations", zap.String("backend", string(backend)))
	if err := db.AutoMigrate(&tree.Node{}); err != nil {
		return nil, fmt.Errorf("automigrate failed: %w", err)
	}

	log.Info("database initialization complete")
	return db, nil
}
