package database

import (
	"apptly/internal/bookings"
	"apptly/internal/waitlist"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&waitlist.WaitlistEntry{},
		&waitlist.WaitlistNotification{},
		&bookings.Appointment{},
	)
}
