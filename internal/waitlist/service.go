package waitlist

import (
	"context"
	"fmt"
	"time"

	"apptly/pkg/logger"

	"github.com/google/uuid"
)

// Notifier is the dispatcher capability for slot offers. Delivery is
// best-effort: the engine records and logs a failure but never lets it
// block or roll back a transition.
type Notifier interface {
	NotifySlotOffer(ctx context.Context, entry *WaitlistEntry) error
}

// BookingCreator materializes the actual appointment once a customer
// confirms an offered slot (defined here to avoid import cycles)
type BookingCreator interface {
	CreateFromWaitlist(ctx context.Context, entry *WaitlistEntry) (uuid.UUID, error)
}

// Acting roles accepted by Cancel
const (
	RoleAdmin    = "ADMIN"
	RoleCustomer = "CUSTOMER"
)

// Service interface defines the contract for waitlist business operations
type Service interface {
	// Core lifecycle operations
	Enroll(ctx context.Context, clientID uuid.UUID, request *EnrollRequest) (*EntryResponse, error)
	Cancel(ctx context.Context, entryID, actingUserID uuid.UUID, actingRole string) error
	Confirm(ctx context.Context, entryID uuid.UUID) error

	// Event-triggered operations
	OnSlotFreed(ctx context.Context, serviceID, employeeID uuid.UUID, requestedAt time.Time) error

	// Background sweep
	Sweep(ctx context.Context) (*SweepResult, error)

	// Queries
	GetEntry(ctx context.Context, entryID uuid.UUID) (*EntryResponse, error)
	ListGroupEntries(ctx context.Context, key GroupKey, status Status) ([]WaitlistEntry, error)
	GroupStats(ctx context.Context, key GroupKey) (*GroupStatsResponse, error)
	RecentNotifications(ctx context.Context, limit int) ([]WaitlistNotification, error)
}

// ServiceConfig contains configuration for the waitlist service
type ServiceConfig struct {
	ConfirmationWindow time.Duration
	PatienceWindow     time.Duration
	SweepBatchSize     int
}

// DefaultServiceConfig returns default service configuration
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		ConfirmationWindow: ConfirmationWindow,
		PatienceWindow:     DefaultPatienceWindow,
		SweepBatchSize:     SweepBatchSize,
	}
}

// service implements the Service interface
type service struct {
	repo     Repository
	notifier Notifier
	bookings BookingCreator
	config   *ServiceConfig
	log      *logger.Logger
}

// NewService creates a new waitlist service
func NewService(repo Repository, notifier Notifier, bookings BookingCreator, config *ServiceConfig) Service {
	if config == nil {
		config = DefaultServiceConfig()
	}

	return &service{
		repo:     repo,
		notifier: notifier,
		bookings: bookings,
		config:   config,
		log:      logger.GetDefault(),
	}
}

// Enroll adds a customer to the waitlist for a fully booked slot
func (s *service) Enroll(ctx context.Context, clientID uuid.UUID, request *EnrollRequest) (*EntryResponse, error) {
	if err := validateEnrollRequest(clientID, request); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry := &WaitlistEntry{
		ClientID:         clientID,
		ServiceID:        request.ServiceID,
		EmployeeID:       request.EmployeeID,
		RequestedAt:      request.RequestedAt.UTC(),
		DurationMinutes:  request.DurationMinutes,
		SelectedAddonIDs: request.SelectedAddonIDs,
		TotalPrice:       request.TotalPrice,
		ExpiresAt:        now.Add(s.config.PatienceWindow),
	}

	if err := s.repo.CreateWithPosition(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to enroll: %w", err)
	}

	s.log.LogWaitlistEnrolled(ctx, entry.ID.String(), clientID.String(), entry.Position)

	return newEntryResponse(entry, time.Now().UTC()), nil
}

// Cancel cancels a waiting or notified entry. Only the entry's owner or
// an admin may cancel; cancelling the current offer holder cascades to
// the next waiting entry.
func (s *service) Cancel(ctx context.Context, entryID, actingUserID uuid.UUID, actingRole string) error {
	entry, err := s.repo.GetEntryByID(ctx, entryID)
	if err != nil {
		return err
	}

	if entry.ClientID != actingUserID && actingRole != RoleAdmin {
		return &ForbiddenError{Message: "only the entry owner or an admin may cancel a waitlist entry"}
	}

	cancelled, promoted, err := s.repo.CancelEntry(ctx, entryID, time.Now().UTC(), s.config.ConfirmationWindow)
	if err != nil {
		return err
	}

	s.log.LogWaitlistTerminal(ctx, cancelled.ID.String(), string(cancelled.Status))

	if promoted != nil {
		s.dispatchOffer(ctx, promoted)
	}
	return nil
}

// Confirm confirms a notified entry within its confirmation window and
// triggers the booking-creation collaborator
func (s *service) Confirm(ctx context.Context, entryID uuid.UUID) error {
	entry, promoted, err := s.repo.ConfirmEntry(ctx, entryID, time.Now().UTC(), s.config.ConfirmationWindow)

	// A lapsed window expires the entry in place and may promote the next
	// one; that offer must go out even though the caller gets a conflict.
	if promoted != nil {
		s.dispatchOffer(ctx, promoted)
	}
	if err != nil {
		return err
	}

	s.log.LogWaitlistTerminal(ctx, entry.ID.String(), string(entry.Status))

	if s.bookings != nil {
		bookingID, bookErr := s.bookings.CreateFromWaitlist(ctx, entry)
		if bookErr != nil {
			// The confirmation stands; booking creation is retried out of
			// band by the operator using the audit trail.
			s.log.ErrorWithContext(ctx, "booking creation failed after confirm", bookErr, map[string]interface{}{
				"entry_id": entry.ID.String(),
			})
		} else {
			s.log.InfoWithContext(ctx, "booking created from waitlist", map[string]interface{}{
				"entry_id":   entry.ID.String(),
				"booking_id": bookingID.String(),
			})
		}
	}
	return nil
}

// OnSlotFreed is the external hook invoked when a booked slot frees up.
// It promotes the group's top waiting entry unless an offer is already
// outstanding.
func (s *service) OnSlotFreed(ctx context.Context, serviceID, employeeID uuid.UUID, requestedAt time.Time) error {
	if serviceID == uuid.Nil || employeeID == uuid.Nil || requestedAt.IsZero() {
		return newValidationError("service, employee and requested time are required")
	}

	key := GroupKey{
		ServiceID:   serviceID,
		EmployeeID:  employeeID,
		RequestedAt: requestedAt.UTC(),
	}

	promoted, err := s.repo.PromoteNext(ctx, key, time.Now().UTC(), s.config.ConfirmationWindow)
	if err != nil {
		return fmt.Errorf("failed to promote for freed slot: %w", err)
	}

	if promoted != nil {
		s.dispatchOffer(ctx, promoted)
	}
	return nil
}

// Sweep runs one expiry pass: every entry whose patience or confirmation
// deadline has lapsed is expired through the transition engine, with the
// cascade promoting successors. Idempotent and safe to run concurrently;
// a single failing entry is logged and skipped, never aborting the batch.
func (s *service) Sweep(ctx context.Context) (*SweepResult, error) {
	started := time.Now()
	now := started.UTC()

	due, err := s.repo.FindDueEntries(ctx, now, s.config.SweepBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to find due entries: %w", err)
	}

	result := &SweepResult{}
	for _, candidate := range due {
		expired, promoted, err := s.repo.ExpireEntry(ctx, candidate.ID, now, s.config.ConfirmationWindow)
		if err != nil {
			s.log.ErrorWithContext(ctx, "sweep failed for entry", err, map[string]interface{}{
				"entry_id": candidate.ID.String(),
			})
			continue
		}
		if expired == nil {
			// Someone else already transitioned it; nothing processed.
			continue
		}

		result.ProcessedCount++
		s.log.LogWaitlistTerminal(ctx, expired.ID.String(), string(expired.Status))

		if promoted != nil {
			s.dispatchOffer(ctx, promoted)
		}
	}

	s.log.LogSweepCompleted(ctx, result.ProcessedCount, time.Since(started))
	return result, nil
}

// GetEntry returns the current state of one entry
func (s *service) GetEntry(ctx context.Context, entryID uuid.UUID) (*EntryResponse, error) {
	entry, err := s.repo.GetEntryByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	return newEntryResponse(entry, time.Now().UTC()), nil
}

// ListGroupEntries lists a group's entries for admin inspection
func (s *service) ListGroupEntries(ctx context.Context, key GroupKey, status Status) ([]WaitlistEntry, error) {
	if status != "" && !status.IsValid() {
		return nil, newValidationError("unknown status %q", status)
	}
	return s.repo.ListGroupEntries(ctx, key, status)
}

// GroupStats returns per-status counts for a group
func (s *service) GroupStats(ctx context.Context, key GroupKey) (*GroupStatsResponse, error) {
	return s.repo.GroupStats(ctx, key)
}

// RecentNotifications lists recent dispatch attempts for admin inspection
func (s *service) RecentNotifications(ctx context.Context, limit int) ([]WaitlistNotification, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.repo.RecentNotifications(ctx, limit)
}

// dispatchOffer delivers the slot offer for a freshly promoted entry and
// records the attempt. Failures are absorbed: the entry stays notified
// and keeps consuming its confirmation window, preserving the
// at-most-one-offer-per-group invariant even if the message never
// arrives. Deliberately not an outbox; the cascade retries at worst one
// confirmation window later.
func (s *service) dispatchOffer(ctx context.Context, entry *WaitlistEntry) {
	s.log.LogWaitlistPromoted(ctx, entry.ID.String(), derefTime(entry.NotificationExpiresAt))

	record := &WaitlistNotification{
		WaitlistEntryID:  entry.ID,
		NotificationType: NotificationTypeSlotOffer,
		Status:           NotificationStatusSent,
		SentAt:           time.Now().UTC(),
	}

	if s.notifier != nil {
		if err := s.notifier.NotifySlotOffer(ctx, entry); err != nil {
			dispatchErr := &DispatchError{Err: err}
			s.log.LogDispatchFailure(ctx, entry.ID.String(), dispatchErr)
			record.Status = NotificationStatusFailed
			msg := dispatchErr.Error()
			record.ErrorMessage = &msg
		}
	}

	if err := s.repo.CreateNotification(ctx, record); err != nil {
		s.log.ErrorWithContext(ctx, "failed to record dispatch attempt", err, map[string]interface{}{
			"entry_id": entry.ID.String(),
		})
	}
}

// validateEnrollRequest checks every required enrollment field
func validateEnrollRequest(clientID uuid.UUID, request *EnrollRequest) error {
	if request == nil {
		return newValidationError("request body is required")
	}
	if clientID == uuid.Nil {
		return newValidationError("client ID is required")
	}
	if request.ServiceID == uuid.Nil {
		return newValidationError("service ID is required")
	}
	if request.EmployeeID == uuid.Nil {
		return newValidationError("employee ID is required")
	}
	if request.RequestedAt.IsZero() {
		return newValidationError("requested time is required")
	}
	if request.DurationMinutes <= 0 {
		return newValidationError("duration must be positive")
	}
	if request.TotalPrice < 0 {
		return newValidationError("total price must not be negative")
	}
	return nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
