package db

import (
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	if err := db.Gorm.AutoMigrate(
		&models.Deliverable{},
		&models.DeliverableVersion{},
		&models.ActivityLog{},
		&models.PreferenceObservation{},
	); err != nil {
		return err
	}

	// Single-flight invariant: at most one generating version per deliverable,
	// enforced in storage so it holds across concurrent scheduler instances.
	// GORM's index tags cannot express a partial unique index.
	return db.Gorm.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_versions_single_flight
		 ON deliverable_versions (deliverable_id)
		 WHERE status = 'generating'`,
	).Error
}
