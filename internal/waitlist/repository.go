package waitlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository interface defines the contract for waitlist data operations.
//
// Every transition method runs as one database transaction holding the
// group's advisory lock, so two callers racing on the same slot group
// serialize: position renumbering always commits atomically with the
// removal that caused it, and at most one promotion can win.
type Repository interface {
	// Enrollment
	CreateWithPosition(ctx context.Context, entry *WaitlistEntry) error

	// Queries
	GetEntryByID(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error)
	ListGroupEntries(ctx context.Context, key GroupKey, status Status) ([]WaitlistEntry, error)
	GroupStats(ctx context.Context, key GroupKey) (*GroupStatsResponse, error)
	FindDueEntries(ctx context.Context, now time.Time, limit int) ([]WaitlistEntry, error)

	// Transitions. The returned promoted entry, when non-nil, is the next
	// waiting entry that won the offer via cascade; the caller dispatches
	// the offer after the transaction has committed.
	CancelEntry(ctx context.Context, id uuid.UUID, now time.Time, confirmWindow time.Duration) (entry, promoted *WaitlistEntry, err error)
	ConfirmEntry(ctx context.Context, id uuid.UUID, now time.Time, confirmWindow time.Duration) (entry, promoted *WaitlistEntry, err error)
	ExpireEntry(ctx context.Context, id uuid.UUID, now time.Time, confirmWindow time.Duration) (entry, promoted *WaitlistEntry, err error)
	PromoteNext(ctx context.Context, key GroupKey, now time.Time, confirmWindow time.Duration) (*WaitlistEntry, error)

	// Notification audit log
	CreateNotification(ctx context.Context, notification *WaitlistNotification) error
	RecentNotifications(ctx context.Context, limit int) ([]WaitlistNotification, error)
}

// repository implements the Repository interface
type repository struct {
	db *gorm.DB
}

// NewRepository creates a new waitlist repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// groupScope restricts a query to one slot group
func groupScope(key GroupKey) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("service_id = ? AND employee_id = ? AND requested_at = ?",
			key.ServiceID, key.EmployeeID, key.RequestedAt)
	}
}

// acquireGroupLock serializes all mutations of one slot group for the
// duration of the surrounding transaction. A transaction-scoped advisory
// lock (rather than FOR UPDATE on existing rows) also serializes
// concurrent inserts into an empty group, which is what makes positions
// deterministic under same-instant enrollments.
func (r *repository) acquireGroupLock(tx *gorm.DB, key GroupKey) error {
	// sqlite (tests) has a single writer; advisory locks are postgres-only.
	if tx.Dialector.Name() == "sqlite" {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key.String()).Error
}

// lockAndFetch loads an entry, takes its group lock, then re-reads it so
// the caller decides on state that cannot change until commit.
func (r *repository) lockAndFetch(tx *gorm.DB, id uuid.UUID) (*WaitlistEntry, error) {
	var probe WaitlistEntry
	if err := tx.Where("id = ?", id).First(&probe).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{EntryID: id}
		}
		return nil, fmt.Errorf("failed to load waitlist entry: %w", err)
	}

	// Group columns are immutable, so the key read before the lock is safe.
	if err := r.acquireGroupLock(tx, probe.GroupKey()); err != nil {
		return nil, fmt.Errorf("failed to lock group: %w", err)
	}

	var entry WaitlistEntry
	if err := tx.Where("id = ?", id).First(&entry).Error; err != nil {
		return nil, fmt.Errorf("failed to re-read waitlist entry: %w", err)
	}
	return &entry, nil
}

// markTerminal writes a terminal status for an entry already held under
// the group lock
func (r *repository) markTerminal(tx *gorm.DB, entry *WaitlistEntry, to Status, now time.Time) error {
	err := tx.Model(&WaitlistEntry{}).
		Where("id = ?", entry.ID).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update entry status: %w", err)
	}

	entry.Status = to
	entry.UpdatedAt = now
	return nil
}

// renumberAfter closes the gap left by a waiting entry that left the
// queue at removedPos, keeping waiting positions contiguous from 1
func (r *repository) renumberAfter(tx *gorm.DB, key GroupKey, removedPos int) error {
	err := tx.Model(&WaitlistEntry{}).
		Scopes(groupScope(key)).
		Where("status = ? AND position > ?", StatusWaiting, removedPos).
		UpdateColumn("position", gorm.Expr("position - 1")).Error
	if err != nil {
		return fmt.Errorf("failed to renumber positions: %w", err)
	}
	return nil
}

// promoteLocked promotes the top-ranked eligible waiting entry of a group
// already held under the group lock. Returns nil without error when the
// group still has a notified entry (at most one offer per group) or has
// no eligible waiting entry left.
func (r *repository) promoteLocked(tx *gorm.DB, key GroupKey, now time.Time, confirmWindow time.Duration) (*WaitlistEntry, error) {
	var notifiedCount int64
	err := tx.Model(&WaitlistEntry{}).
		Scopes(groupScope(key)).
		Where("status = ?", StatusNotified).
		Count(&notifiedCount).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count notified entries: %w", err)
	}
	if notifiedCount > 0 {
		return nil, nil
	}

	var next WaitlistEntry
	err = tx.Scopes(groupScope(key)).
		Where("status = ? AND expires_at > ?", StatusWaiting, now).
		Order("position ASC, created_at ASC").
		First(&next).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select next waiting entry: %w", err)
	}

	removedPos := next.Position
	sentAt := now
	notificationExpiresAt := now.Add(confirmWindow)

	err = tx.Model(&WaitlistEntry{}).
		Where("id = ?", next.ID).
		Updates(map[string]interface{}{
			"status":                  StatusNotified,
			"position":                0,
			"notification_sent_at":    sentAt,
			"notification_expires_at": notificationExpiresAt,
			"updated_at":              now,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to promote entry: %w", err)
	}

	if err := r.renumberAfter(tx, key, removedPos); err != nil {
		return nil, err
	}

	next.Status = StatusNotified
	next.Position = 0
	next.NotificationSentAt = &sentAt
	next.NotificationExpiresAt = &notificationExpiresAt
	next.UpdatedAt = now
	return &next, nil
}

// CreateWithPosition inserts a new waiting entry ranked behind every
// waiting entry already in its group
func (r *repository) CreateWithPosition(ctx context.Context, entry *WaitlistEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		key := entry.GroupKey()
		if err := r.acquireGroupLock(tx, key); err != nil {
			return fmt.Errorf("failed to lock group: %w", err)
		}

		var waitingCount int64
		err := tx.Model(&WaitlistEntry{}).
			Scopes(groupScope(key)).
			Where("status = ?", StatusWaiting).
			Count(&waitingCount).Error
		if err != nil {
			return fmt.Errorf("failed to count waiting entries: %w", err)
		}

		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		entry.Position = int(waitingCount) + 1
		entry.Status = StatusWaiting

		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("failed to create waitlist entry: %w", err)
		}
		return nil
	})
}

// GetEntryByID gets a waitlist entry by ID
func (r *repository) GetEntryByID(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error) {
	var entry WaitlistEntry
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{EntryID: id}
		}
		return nil, fmt.Errorf("failed to get waitlist entry: %w", err)
	}
	return &entry, nil
}

// ListGroupEntries lists a group's entries with optional status filter
func (r *repository) ListGroupEntries(ctx context.Context, key GroupKey, status Status) ([]WaitlistEntry, error) {
	var entries []WaitlistEntry
	query := r.db.WithContext(ctx).Scopes(groupScope(key))

	if status != "" {
		query = query.Where("status = ?", status)
	}

	err := query.Order("position ASC, created_at ASC").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list waitlist entries: %w", err)
	}
	return entries, nil
}

// GroupStats gets per-status counts for a group
func (r *repository) GroupStats(ctx context.Context, key GroupKey) (*GroupStatsResponse, error) {
	stats := &GroupStatsResponse{
		ServiceID:   key.ServiceID,
		EmployeeID:  key.EmployeeID,
		RequestedAt: key.RequestedAt,
	}

	type StatusCount struct {
		Status Status
		Count  int
	}

	var statusCounts []StatusCount
	err := r.db.WithContext(ctx).
		Model(&WaitlistEntry{}).
		Select("status, COUNT(*) as count").
		Scopes(groupScope(key)).
		Group("status").
		Scan(&statusCounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get group stats: %w", err)
	}

	for _, sc := range statusCounts {
		switch sc.Status {
		case StatusWaiting:
			stats.WaitingCount = sc.Count
		case StatusNotified:
			stats.NotifiedCount = sc.Count
		case StatusConfirmed:
			stats.ConfirmedCount = sc.Count
		case StatusExpired:
			stats.ExpiredCount = sc.Count
		case StatusCancelled:
			stats.CancelledCount = sc.Count
		}
		stats.TotalCount += sc.Count
	}

	return stats, nil
}

// FindDueEntries finds entries whose patience or confirmation deadline
// has passed. Read without locks: the sweeper re-checks every candidate
// under its group lock before expiring it.
func (r *repository) FindDueEntries(ctx context.Context, now time.Time, limit int) ([]WaitlistEntry, error) {
	var entries []WaitlistEntry
	err := r.db.WithContext(ctx).
		Where("(status = ? AND expires_at < ?) OR (status = ? AND notification_expires_at < ?)",
			StatusWaiting, now, StatusNotified, now).
		Order("created_at ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find due entries: %w", err)
	}
	return entries, nil
}

// CancelEntry cancels a waiting or notified entry. Cancelling the entry
// that holds the offer cascades to the next waiting entry in the group.
func (r *repository) CancelEntry(ctx context.Context, id uuid.UUID, now time.Time, confirmWindow time.Duration) (*WaitlistEntry, *WaitlistEntry, error) {
	var entry, promoted *WaitlistEntry

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := r.lockAndFetch(tx, id)
		if err != nil {
			return err
		}

		if !e.Status.CanTransitionTo(StatusCancelled) {
			return newConflictError("entry is already %s", strings.ToLower(string(e.Status)))
		}

		wasNotified := e.Status == StatusNotified
		removedPos := e.Position

		if err := r.markTerminal(tx, e, StatusCancelled, now); err != nil {
			return err
		}

		if wasNotified {
			// The offer holder dropped out: cascade immediately.
			promoted, err = r.promoteLocked(tx, e.GroupKey(), now, confirmWindow)
			if err != nil {
				return err
			}
		} else if err := r.renumberAfter(tx, e.GroupKey(), removedPos); err != nil {
			return err
		}

		entry = e
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return entry, promoted, nil
}

// ConfirmEntry confirms a notified entry within its confirmation window.
//
// When the window has already lapsed the entry is expired in place and
// the cascade runs, exactly as the sweeper would have done; the caller
// still receives a ConflictError (the race resolves to whoever wrote
// first) together with the promoted entry to dispatch.
func (r *repository) ConfirmEntry(ctx context.Context, id uuid.UUID, now time.Time, confirmWindow time.Duration) (*WaitlistEntry, *WaitlistEntry, error) {
	var entry, promoted *WaitlistEntry
	var conflict error

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := r.lockAndFetch(tx, id)
		if err != nil {
			return err
		}

		if e.Status != StatusNotified {
			conflict = newConflictError("slot is no longer available: entry is %s", strings.ToLower(string(e.Status)))
			return nil
		}

		if e.NotificationExpiresAt != nil && !e.NotificationExpiresAt.After(now) {
			if err := r.markTerminal(tx, e, StatusExpired, now); err != nil {
				return err
			}
			promoted, err = r.promoteLocked(tx, e.GroupKey(), now, confirmWindow)
			if err != nil {
				return err
			}
			entry = e
			conflict = newConflictError("confirmation window has expired")
			return nil
		}

		if err := r.markTerminal(tx, e, StatusConfirmed, now); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return entry, promoted, conflict
}

// ExpireEntry expires one due entry found by a sweep pass. The deadline
// is re-checked under the group lock, so a pass racing another sweep or
// a user action degrades to a no-op (entry returned nil).
func (r *repository) ExpireEntry(ctx context.Context, id uuid.UUID, now time.Time, confirmWindow time.Duration) (*WaitlistEntry, *WaitlistEntry, error) {
	var entry, promoted *WaitlistEntry

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := r.lockAndFetch(tx, id)
		if err != nil {
			return err
		}

		switch {
		case e.Status == StatusWaiting && !e.ExpiresAt.After(now):
			// Patience window over before the entry was ever promoted.
			removedPos := e.Position
			if err := r.markTerminal(tx, e, StatusExpired, now); err != nil {
				return err
			}
			if err := r.renumberAfter(tx, e.GroupKey(), removedPos); err != nil {
				return err
			}
			entry = e

		case e.Status == StatusNotified && e.NotificationExpiresAt != nil && !e.NotificationExpiresAt.After(now):
			// Confirmation window over: cascade to the next in line.
			if err := r.markTerminal(tx, e, StatusExpired, now); err != nil {
				return err
			}
			promoted, err = r.promoteLocked(tx, e.GroupKey(), now, confirmWindow)
			if err != nil {
				return err
			}
			entry = e

		default:
			// Already handled by a concurrent caller.
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return entry, promoted, nil
}

// PromoteNext promotes the top waiting entry of a group, if the group
// currently has no notified entry
func (r *repository) PromoteNext(ctx context.Context, key GroupKey, now time.Time, confirmWindow time.Duration) (*WaitlistEntry, error) {
	var promoted *WaitlistEntry

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.acquireGroupLock(tx, key); err != nil {
			return fmt.Errorf("failed to lock group: %w", err)
		}
		p, err := r.promoteLocked(tx, key, now, confirmWindow)
		if err != nil {
			return err
		}
		promoted = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}

// CreateNotification creates a new dispatch audit record
func (r *repository) CreateNotification(ctx context.Context, notification *WaitlistNotification) error {
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}

	err := r.db.WithContext(ctx).Create(notification).Error
	if err != nil {
		return fmt.Errorf("failed to create notification record: %w", err)
	}
	return nil
}

// RecentNotifications lists the most recent dispatch attempts
func (r *repository) RecentNotifications(ctx context.Context, limit int) ([]WaitlistNotification, error) {
	var notifications []WaitlistNotification
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}
