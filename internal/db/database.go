package db

import (
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/castframework/cast1-sub000/internal/config"
	"github.com/castframework/cast1-sub000/internal/models"
)

var DB *gorm.DB

// InitDB connects to the settlement repository database and migrates its schema
func InitDB(cfg config.DatabaseConfig, log *logrus.Logger) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := gorm.Open(dialector(cfg), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		PrepareStmt:            true,
		CreateBatchSize:        500,
		Logger:                 logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	log.WithField("driver", cfg.Driver).Info("Database connected successfully")

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info("Database schema migrated successfully")

	DB = db
	return db, nil
}

// dialector selects the database/sql driver behind gorm's postgres dialect.
// "postgres" uses lib/pq, anything else the default pgx stdlib driver.
func dialector(cfg config.DatabaseConfig) gorm.Dialector {
	if cfg.Driver == "postgres" {
		return postgres.New(postgres.Config{
			DriverName: "postgres",
			DSN:        cfg.DSN,
		})
	}
	return postgres.Open(cfg.DSN)
}

// Migrate creates or updates the settlement transaction tables
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Movement{},
		&models.SettlementTransaction{},
	); err != nil {
		return fmt.Errorf("AutoMigrate failed: %w", err)
	}
	return nil
}
