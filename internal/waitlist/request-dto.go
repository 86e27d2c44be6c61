package waitlist

import (
	"time"

	"github.com/google/uuid"
)

type EnrollRequest struct {
	ServiceID        uuid.UUID `json:"service_id" validate:"required"`
	EmployeeID       uuid.UUID `json:"employee_id" validate:"required"`
	RequestedAt      time.Time `json:"requested_at" validate:"required"`
	DurationMinutes  int       `json:"duration_minutes" validate:"required,min=1"`
	SelectedAddonIDs UUIDSlice `json:"selected_addon_ids,omitempty"`
	TotalPrice       float64   `json:"total_price" validate:"gte=0"`
}

type SlotFreedRequest struct {
	ServiceID   uuid.UUID `json:"service_id" validate:"required"`
	EmployeeID  uuid.UUID `json:"employee_id" validate:"required"`
	RequestedAt time.Time `json:"requested_at" validate:"required"`
}
