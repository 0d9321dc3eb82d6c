package store

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/campfin/fec-sync/pkg/models"
)

// Open connects to Postgres with the given DSN. gorm's own logging is
// silenced; the loader logs through zerolog.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// AutoMigrate creates the five sync tables and their unique hash indexes when
// absent. The pipeline itself treats schema presence as a precondition; this
// runs from the separate migrate command.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Candidate{},
		&models.Committee{},
		&models.Contributor{},
		&models.Contribution{},
		&models.CandidateCommittee{},
	)
}
