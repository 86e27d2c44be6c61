package notifications

import (
	"time"

	"github.com/google/uuid"

	"apptly/internal/waitlist"
)

// SlotOfferMessage is the payload published when a waitlist entry is
// promoted. The downstream notifier renders and delivers it; this
// service only guarantees a best-effort publish.
type SlotOfferMessage struct {
	EntryID               uuid.UUID `json:"entry_id"`
	ClientID              uuid.UUID `json:"client_id"`
	ServiceID             uuid.UUID `json:"service_id"`
	EmployeeID            uuid.UUID `json:"employee_id"`
	RequestedAt           time.Time `json:"requested_at"`
	DurationMinutes       int       `json:"duration_minutes"`
	TotalPrice            float64   `json:"total_price"`
	ConfirmPath           string    `json:"confirm_path"`
	NotificationExpiresAt time.Time `json:"notification_expires_at"`
	SentAt                time.Time `json:"sent_at"`
}

// NewSlotOfferMessage builds the offer payload for a promoted entry
func NewSlotOfferMessage(entry *waitlist.WaitlistEntry) *SlotOfferMessage {
	msg := &SlotOfferMessage{
		EntryID:         entry.ID,
		ClientID:        entry.ClientID,
		ServiceID:       entry.ServiceID,
		EmployeeID:      entry.EmployeeID,
		RequestedAt:     entry.RequestedAt,
		DurationMinutes: entry.DurationMinutes,
		TotalPrice:      entry.TotalPrice,
		ConfirmPath:     "/waitlist/" + entry.ID.String() + "/confirm",
		SentAt:          time.Now().UTC(),
	}
	if entry.NotificationExpiresAt != nil {
		msg.NotificationExpiresAt = *entry.NotificationExpiresAt
	}
	return msg
}
