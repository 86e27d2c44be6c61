package database

import (
	"gorm.io/gorm"
)

// MigrateConstraints adds critical database constraints for concurrency control
func MigrateConstraints(db *gorm.DB) error {
	// At most one outstanding offer per slot group, enforced by the
	// database as the last line of defense behind the advisory locks.
	err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS uniq_waitlist_notified_per_group
		ON waitlist_entries (service_id, employee_id, requested_at)
		WHERE status = 'NOTIFIED';
	`).Error
	if err != nil {
		return err
	}

	// Sweep scans filter on status plus the matching deadline column.
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_waitlist_patience_due
		ON waitlist_entries (expires_at)
		WHERE status = 'WAITING';
	`).Error
	if err != nil {
		return err
	}

	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_waitlist_confirmation_due
		ON waitlist_entries (notification_expires_at)
		WHERE status = 'NOTIFIED';
	`).Error
	if err != nil {
		return err
	}

	return nil
}
