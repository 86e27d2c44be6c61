package bookings

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"apptly/internal/waitlist"
	"apptly/pkg/logger"
)

// Service creates appointments from confirmed waitlist entries
type Service interface {
	CreateFromWaitlist(ctx context.Context, entry *waitlist.WaitlistEntry) (uuid.UUID, error)
}

type service struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewService creates a new booking service
func NewService(db *gorm.DB) Service {
	return &service{
		db:  db,
		log: logger.GetDefault(),
	}
}

// CreateFromWaitlist materializes the appointment for a confirmed entry
func (s *service) CreateFromWaitlist(ctx context.Context, entry *waitlist.WaitlistEntry) (uuid.UUID, error) {
	entryID := entry.ID
	appointment := &Appointment{
		ID:               uuid.New(),
		ClientID:         entry.ClientID,
		ServiceID:        entry.ServiceID,
		EmployeeID:       entry.EmployeeID,
		StartsAt:         entry.RequestedAt,
		DurationMinutes:  entry.DurationMinutes,
		SelectedAddonIDs: entry.SelectedAddonIDs,
		TotalPrice:       entry.TotalPrice,
		Status:           StatusConfirmed,
		Source:           SourceWaitlist,
		WaitlistEntryID:  &entryID,
	}

	if err := s.db.WithContext(ctx).Create(appointment).Error; err != nil {
		return uuid.Nil, fmt.Errorf("failed to create appointment: %w", err)
	}

	s.log.InfoWithContext(ctx, "appointment created", map[string]interface{}{
		"appointment_id": appointment.ID.String(),
		"client_id":      appointment.ClientID.String(),
		"starts_at":      appointment.StartsAt,
	})
	return appointment.ID, nil
}
