package db

import (
	"fmt"
	"time"

	"collab-relay/internal/config"
	"collab-relay/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormDB wraps the GORM database instance
type GormDB struct {
	*gorm.DB
}

// NewGorm connects to postgres and migrates the activity table
func NewGorm(cfg *config.Config, log *zap.Logger) (*GormDB, error) {
	level := logger.Warn
	if cfg.Env == "dev" {
		level = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL()), &gorm.Config{
		Logger: NewGormLogger(log, level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Info("✓ Database connected and migrated",
		zap.String("host", cfg.DBHost),
		zap.String("database", cfg.DBName),
	)

	return &GormDB{db}, nil
}

// NewGormLogger routes GORM's query and slow-query logs through zap
func NewGormLogger(log *zap.Logger, level logger.LogLevel) logger.Interface {
	return logger.New(zap.NewStdLog(log.Named("gorm")), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// Migrate creates or updates the schema
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.ActivityEntry{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *GormDB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
