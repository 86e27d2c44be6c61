package bookings

import (
	"time"

	"github.com/google/uuid"

	"apptly/internal/waitlist"
)

type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Source records how an appointment came to exist
type Source string

const (
	SourceDirect   Source = "DIRECT"
	SourceWaitlist Source = "WAITLIST"
)

// Appointment is the materialized booking created when a waitlist offer
// is confirmed. The engine only ever writes these; the rest of the
// booking platform owns their further lifecycle.
type Appointment struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey" db:"id"`
	ClientID   uuid.UUID `json:"client_id" gorm:"type:uuid;not null;index" db:"client_id"`
	ServiceID  uuid.UUID `json:"service_id" gorm:"type:uuid;not null;index" db:"service_id"`
	EmployeeID uuid.UUID `json:"employee_id" gorm:"type:uuid;not null;index" db:"employee_id"`
	StartsAt   time.Time `json:"starts_at" gorm:"not null;index" db:"starts_at"`
	// DurationMinutes and TotalPrice are carried over from the waitlist
	// entry's enrollment-time snapshot.
	DurationMinutes  int                `json:"duration_minutes" gorm:"not null" db:"duration_minutes"`
	SelectedAddonIDs waitlist.UUIDSlice `json:"selected_addon_ids" gorm:"type:jsonb" db:"selected_addon_ids"`
	TotalPrice       float64            `json:"total_price" gorm:"not null" db:"total_price"`
	Status           Status             `json:"status" gorm:"type:varchar(20);not null;index" db:"status"`
	Source           Source             `json:"source" gorm:"type:varchar(20);not null" db:"source"`
	// WaitlistEntryID links back to the confirmed entry for audit
	WaitlistEntryID *uuid.UUID `json:"waitlist_entry_id,omitempty" gorm:"type:uuid;index" db:"waitlist_entry_id"`
	CreatedAt       time.Time  `json:"created_at" gorm:"autoCreateTime" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" gorm:"autoUpdateTime" db:"updated_at"`
}
