package waitlist

import (
	"time"

	"github.com/google/uuid"
)

type EntryResponse struct {
	ID                    uuid.UUID      `json:"id"`
	ClientID              uuid.UUID      `json:"client_id"`
	ServiceID             uuid.UUID      `json:"service_id"`
	EmployeeID            uuid.UUID      `json:"employee_id"`
	RequestedAt           time.Time      `json:"requested_at"`
	DurationMinutes       int            `json:"duration_minutes"`
	SelectedAddonIDs      UUIDSlice      `json:"selected_addon_ids,omitempty"`
	TotalPrice            float64        `json:"total_price"`
	Position              int            `json:"position"`
	Status                Status         `json:"status"`
	ExpiresAt             time.Time      `json:"expires_at"`
	NotificationSentAt    *time.Time     `json:"notification_sent_at,omitempty"`
	NotificationExpiresAt *time.Time     `json:"notification_expires_at,omitempty"`
	ConfirmationRemaining *time.Duration `json:"confirmation_remaining,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
}

func newEntryResponse(entry *WaitlistEntry, now time.Time) *EntryResponse {
	resp := &EntryResponse{
		ID:                    entry.ID,
		ClientID:              entry.ClientID,
		ServiceID:             entry.ServiceID,
		EmployeeID:            entry.EmployeeID,
		RequestedAt:           entry.RequestedAt,
		DurationMinutes:       entry.DurationMinutes,
		SelectedAddonIDs:      entry.SelectedAddonIDs,
		TotalPrice:            entry.TotalPrice,
		Position:              entry.Position,
		Status:                entry.Status,
		ExpiresAt:             entry.ExpiresAt,
		NotificationSentAt:    entry.NotificationSentAt,
		NotificationExpiresAt: entry.NotificationExpiresAt,
		CreatedAt:             entry.CreatedAt,
	}

	if entry.IsNotified() {
		resp.ConfirmationRemaining = entry.ConfirmationRemaining(now)
	}
	return resp
}

type GroupStatsResponse struct {
	ServiceID      uuid.UUID `json:"service_id"`
	EmployeeID     uuid.UUID `json:"employee_id"`
	RequestedAt    time.Time `json:"requested_at"`
	TotalCount     int       `json:"total_count"`
	WaitingCount   int       `json:"waiting_count"`
	NotifiedCount  int       `json:"notified_count"`
	ConfirmedCount int       `json:"confirmed_count"`
	ExpiredCount   int       `json:"expired_count"`
	CancelledCount int       `json:"cancelled_count"`
}

type SweepResult struct {
	ProcessedCount int `json:"processed_count"`
}
