package database

import (
	"fmt"
	"hearcheck-go/internal/config"
	logging "hearcheck-go/internal/logging"
	"hearcheck-go/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open connects to PostgreSQL and runs the migrations.
func Open(conf config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(conf.DSN()), &gorm.Config{
		Logger:         logging.NewGormLogger(log, conf.SlowThreshold),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	log.Info("Database connection established successfully.")

	if err := runMigrations(db, log); err != nil {
		return nil, err
	}
	return db, nil
}

func runMigrations(db *gorm.DB, log *zap.Logger) error {
	// GORM's AutoMigrate will create tables, columns, and foreign keys.
	// It will NOT create custom indexes, so we handle that separately.
	err := db.AutoMigrate(
		&models.User{},
		&models.ScreeningState{},
		&models.AudiogramResult{},
	)
	if err != nil {
		return fmt.Errorf("run database migrations: %w", err)
	}
	log.Info("Database migrations completed successfully.")

	staleIndex := `CREATE INDEX IF NOT EXISTS idx_screening_states_open ON screening_states (updated_at) WHERE is_complete = false;`
	if err := db.Exec(staleIndex).Error; err != nil {
		return fmt.Errorf("create custom index on screening_states: %w", err)
	}
	resultsIndex := `CREATE INDEX IF NOT EXISTS idx_audiogram_results_latest ON audiogram_results (user_id, created_at DESC);`
	if err := db.Exec(resultsIndex).Error; err != nil {
		return fmt.Errorf("create custom index on audiogram_results: %w", err)
	}
	log.Info("Custom indexes ensured successfully.")
	return nil
}
