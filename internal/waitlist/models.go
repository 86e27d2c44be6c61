package waitlist

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UUIDSlice represents an ordered set of UUIDs stored as a JSON column
type UUIDSlice []uuid.UUID

// Value implements the driver.Valuer interface for database storage
func (s UUIDSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// Scan implements the sql.Scanner interface for database retrieval
func (s *UUIDSlice) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return errors.New("unsupported type for UUIDSlice")
	}
}

// GormDataType tells GORM how to handle this type
func (UUIDSlice) GormDataType() string {
	return "jsonb"
}

// Status represents the lifecycle state of a waitlist entry
type Status string

const (
	StatusWaiting   Status = "WAITING"
	StatusNotified  Status = "NOTIFIED"
	StatusConfirmed Status = "CONFIRMED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

// IsValid checks if the status is a known lifecycle state
func (s Status) IsValid() bool {
	switch s {
	case StatusWaiting, StatusNotified, StatusConfirmed, StatusExpired, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for states that can never be left again
func (s Status) IsTerminal() bool {
	switch s {
	case StatusConfirmed, StatusExpired, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks if the status can transition to the target status
func (s Status) CanTransitionTo(target Status) bool {
	validTransitions := map[Status][]Status{
		StatusWaiting:   {StatusNotified, StatusExpired, StatusCancelled},
		StatusNotified:  {StatusConfirmed, StatusExpired, StatusCancelled},
		StatusConfirmed: {}, // Terminal state
		StatusExpired:   {}, // Terminal state
		StatusCancelled: {}, // Terminal state
	}

	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// GroupKey identifies the set of entries competing for the same freed slot.
// Position and promotion are always scoped to one group.
type GroupKey struct {
	ServiceID   uuid.UUID
	EmployeeID  uuid.UUID
	RequestedAt time.Time
}

// String returns a stable textual form used for lock keys
func (k GroupKey) String() string {
	return fmt.Sprintf("%s:%s:%d", k.ServiceID, k.EmployeeID, k.RequestedAt.UTC().Unix())
}

// WaitlistEntry represents a customer waiting for a fully booked appointment slot
type WaitlistEntry struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey" db:"id"`
	ClientID   uuid.UUID `json:"client_id" gorm:"type:uuid;not null;index" db:"client_id"`
	ServiceID  uuid.UUID `json:"service_id" gorm:"type:uuid;not null;index:idx_waitlist_group" db:"service_id"`
	EmployeeID uuid.UUID `json:"employee_id" gorm:"type:uuid;not null;index:idx_waitlist_group" db:"employee_id"`
	// RequestedAt is the exact appointment slot being waited for.
	RequestedAt time.Time `json:"requested_at" gorm:"not null;index:idx_waitlist_group" db:"requested_at"`
	// DurationMinutes is snapshotted at enrollment so later service edits
	// do not retroactively alter a pending entry.
	DurationMinutes  int       `json:"duration_minutes" gorm:"not null" db:"duration_minutes"`
	SelectedAddonIDs UUIDSlice `json:"selected_addon_ids" gorm:"type:jsonb" db:"selected_addon_ids"`
	TotalPrice       float64   `json:"total_price" gorm:"not null" db:"total_price"`
	// Position is the 1-based rank among WAITING entries of the group.
	// The entry currently holding the offer carries position 0.
	Position int    `json:"position" gorm:"not null;index" db:"position"`
	Status   Status `json:"status" gorm:"type:varchar(20);not null;index" db:"status"`
	// ExpiresAt is the patience deadline: a still-waiting entry past it is
	// no longer eligible for promotion.
	ExpiresAt             time.Time  `json:"expires_at" gorm:"not null;index" db:"expires_at"`
	NotificationSentAt    *time.Time `json:"notification_sent_at,omitempty" db:"notification_sent_at"`
	NotificationExpiresAt *time.Time `json:"notification_expires_at,omitempty" gorm:"index" db:"notification_expires_at"`
	CreatedAt             time.Time  `json:"created_at" gorm:"autoCreateTime" db:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at" gorm:"autoUpdateTime" db:"updated_at"`
}

// GroupKey returns the slot group this entry competes in
func (we *WaitlistEntry) GroupKey() GroupKey {
	return GroupKey{
		ServiceID:   we.ServiceID,
		EmployeeID:  we.EmployeeID,
		RequestedAt: we.RequestedAt,
	}
}

// IsWaiting returns true if the entry is still queued
func (we *WaitlistEntry) IsWaiting() bool {
	return we.Status == StatusWaiting
}

// IsNotified returns true if the entry currently holds the slot offer
func (we *WaitlistEntry) IsNotified() bool {
	return we.Status == StatusNotified
}

// ConfirmationRemaining returns the time left in the confirmation window
func (we *WaitlistEntry) ConfirmationRemaining(now time.Time) *time.Duration {
	if we.NotificationExpiresAt == nil {
		return nil
	}
	remaining := we.NotificationExpiresAt.Sub(now)
	if remaining < 0 {
		return nil
	}
	return &remaining
}

// NotificationType represents the type of a dispatch attempt
type NotificationType string

const (
	NotificationTypeSlotOffer NotificationType = "SLOT_OFFER"
)

// NotificationStatus represents the outcome of a dispatch attempt
type NotificationStatus string

const (
	NotificationStatusSent   NotificationStatus = "SENT"
	NotificationStatusFailed NotificationStatus = "FAILED"
)

// WaitlistNotification is an audit record of one offer dispatch attempt.
// Dispatch is best-effort: a FAILED row never rolls back the transition
// that triggered it.
type WaitlistNotification struct {
	ID               uuid.UUID          `json:"id" gorm:"type:uuid;primaryKey" db:"id"`
	WaitlistEntryID  uuid.UUID          `json:"waitlist_entry_id" gorm:"type:uuid;not null;index" db:"waitlist_entry_id"`
	NotificationType NotificationType   `json:"notification_type" gorm:"type:varchar(50);not null" db:"notification_type"`
	Status           NotificationStatus `json:"status" gorm:"type:varchar(20);not null;index" db:"status"`
	ErrorMessage     *string            `json:"error_message,omitempty" db:"error_message"`
	SentAt           time.Time          `json:"sent_at" gorm:"not null" db:"sent_at"`
	CreatedAt        time.Time          `json:"created_at" gorm:"autoCreateTime" db:"created_at"`
}

// Configuration Constants

const (
	// ConfirmationWindow is the default period a notified customer has
	// to confirm before the slot cascades to the next entry.
	ConfirmationWindow = 15 * time.Minute

	// DefaultPatienceWindow is the default time a waiting entry stays
	// eligible for promotion.
	DefaultPatienceWindow = 72 * time.Hour

	// SweepBatchSize is the number of due entries one sweep pass loads
	SweepBatchSize = 100
)

// Redis Key Helpers

// GetSweepLockKey returns the Redis key guarding concurrent sweep passes
func GetSweepLockKey() string {
	return "waitlist:sweep:lock"
}

// GetGroupLockKey returns the Redis key for a group's dispatch lock
func GetGroupLockKey(key GroupKey) string {
	return "waitlist:lock:" + key.String()
}
