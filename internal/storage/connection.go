// Package storage wires the gorm/postgres connection pool and defines the
// persisted row shapes for calculation results, audit detail, and the
// transactional outbox.
package storage

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/proposalcore/pricing-engine/internal/config"
	"github.com/proposalcore/pricing-engine/internal/telemetry/logging"
)

// connMaxLifetime is not externally configurable; the pool is small and
// long-lived per process, so a generous fixed lifetime is sufficient.
const connMaxLifetime = 30 * time.Minute

// Database wraps the gorm handle used by preparation and commit.
type Database struct {
	DB *gorm.DB
}

// Connect opens a REPEATABLE READ-capable postgres pool sized from cfg.
func Connect(cfg config.DatabaseConfig, log *logging.Logger) (*Database, error) {
	gormLogger := logger.Default.LogMode(logger.Warn)

	gormDB, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConnections)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConnections)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("connected to database", zap.String("host", cfg.Host), zap.String("database", cfg.DBName))
	return &Database{DB: gormDB}, nil
}

// Close releases the underlying connection pool.
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// HealthCheck pings the pool.
func (d *Database) HealthCheck() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Ping()
}
