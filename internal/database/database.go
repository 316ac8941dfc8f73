package database

import (
	"log"
	"time"

	"github.com/JunaidSumsaal/advanceparkingsystem/internal/config"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type DB struct {
	*gorm.DB
}

func Connect(cfg *config.Config) (*DB, error) {
	logLevel := logger.Silent
	if cfg.ServerEnv == "development" {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logLevel),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}

	// Register metrics plugin for Prometheus
	if err := db.Use(&MetricsPlugin{}); err != nil {
		log.Printf("Failed to register metrics plugin: %v", err)
	} else {
		log.Println("Database metrics plugin registered")
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
		log.Println("Database connection pool configured")
	}

	return &DB{db}, nil
}

// Migrate runs AutoMigrate for all models
// Note: Errors are logged but not fatal - the schema may predate this service
func Migrate(db *DB) error {
	err := db.AutoMigrate(
		// Account domain (owned elsewhere, read here)
		&models.User{},
		&models.FCMDevice{},

		// Parking domain
		&models.ParkingFacility{},
		&models.ParkingSpot{},

		// Notifications
		&models.Notification{},
	)
	if err != nil {
		log.Printf("AutoMigrate warning (non-fatal): %v", err)
	}
	return nil
}
