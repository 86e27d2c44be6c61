package waitlist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// fakeNotifier records dispatched offers and can be told to fail
type fakeNotifier struct {
	offers []uuid.UUID
	err    error
}

func (f *fakeNotifier) NotifySlotOffer(ctx context.Context, entry *WaitlistEntry) error {
	f.offers = append(f.offers, entry.ID)
	return f.err
}

// fakeBookings records confirmed entries handed over for booking creation
type fakeBookings struct {
	created []uuid.UUID
	err     error
}

func (f *fakeBookings) CreateFromWaitlist(ctx context.Context, entry *WaitlistEntry) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.Nil, f.err
	}
	f.created = append(f.created, entry.ID)
	return uuid.New(), nil
}

type testEnv struct {
	svc      Service
	repo     Repository
	notifier *fakeNotifier
	bookings *fakeBookings
	db       *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&WaitlistEntry{}, &WaitlistNotification{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	notifier := &fakeNotifier{}
	bookings := &fakeBookings{}
	repo := NewRepository(db)
	svc := NewService(repo, notifier, bookings, &ServiceConfig{
		ConfirmationWindow: 15 * time.Minute,
		PatienceWindow:     time.Hour,
		SweepBatchSize:     100,
	})

	return &testEnv{svc: svc, repo: repo, notifier: notifier, bookings: bookings, db: db}
}

func testGroupKey() GroupKey {
	return GroupKey{
		ServiceID:   uuid.New(),
		EmployeeID:  uuid.New(),
		RequestedAt: time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC),
	}
}

func (e *testEnv) enroll(t *testing.T, key GroupKey, clientID uuid.UUID) *EntryResponse {
	t.Helper()

	resp, err := e.svc.Enroll(context.Background(), clientID, &EnrollRequest{
		ServiceID:       key.ServiceID,
		EmployeeID:      key.EmployeeID,
		RequestedAt:     key.RequestedAt,
		DurationMinutes: 60,
		TotalPrice:      45.0,
	})
	if err != nil {
		t.Fatalf("failed to enroll: %v", err)
	}
	return resp
}

func (e *testEnv) getEntry(t *testing.T, id uuid.UUID) *WaitlistEntry {
	t.Helper()

	var entry WaitlistEntry
	if err := e.db.Where("id = ?", id).First(&entry).Error; err != nil {
		t.Fatalf("failed to load entry %s: %v", id, err)
	}
	return &entry
}

// backdate pushes a deadline column into the past so that sweep and
// confirm paths see a lapsed window without the test sleeping
func (e *testEnv) backdate(t *testing.T, id uuid.UUID, column string) {
	t.Helper()

	past := time.Now().UTC().Add(-time.Minute)
	err := e.db.Model(&WaitlistEntry{}).
		Where("id = ?", id).
		UpdateColumn(column, past).Error
	if err != nil {
		t.Fatalf("failed to backdate %s: %v", column, err)
	}
}

func TestEnroll_AssignsSequentialPositions(t *testing.T) {
	env := newTestEnv(t)
	key := testGroupKey()

	a := env.enroll(t, key, uuid.New())
	b := env.enroll(t, key, uuid.New())
	c := env.enroll(t, key, uuid.New())

	for i, resp := range []*EntryResponse{a, b, c} {
		if resp.Position != i+1 {
			t.Errorf("entry %d: got position %d, want %d", i, resp.Position, i+1)
		}
		if resp.Status != StatusWaiting {
			t.Errorf("entry %d: got status %s, want WAITING", i, resp.Status)
		}
	}

	// A different slot has its own queue starting back at 1.
	other := testGroupKey()
	d := env.enroll(t, other, uuid.New())
	if d.Position != 1 {
		t.Errorf("separate group: got position %d, want 1", d.Position)
	}
}

func TestEnroll_SetsPatienceDeadline(t *testing.T) {
	env := newTestEnv(t)

	before := time.Now().UTC()
	resp := env.enroll(t, testGroupKey(), uuid.New())

	min := before.Add(time.Hour)
	max := time.Now().UTC().Add(time.Hour)
	if resp.ExpiresAt.Before(min) || resp.ExpiresAt.After(max) {
		t.Errorf("patience deadline %v outside [%v, %v]", resp.ExpiresAt, min, max)
	}
}

func TestEnroll_RejectsInvalidRequests(t *testing.T) {
	env := newTestEnv(t)
	key := testGroupKey()
	valid := func() *EnrollRequest {
		return &EnrollRequest{
			ServiceID:       key.ServiceID,
			EmployeeID:      key.EmployeeID,
			RequestedAt:     key.RequestedAt,
			DurationMinutes: 30,
			TotalPrice:      20,
		}
	}

	cases := []struct {
		name    string
		mutate  func(*EnrollRequest)
		noOwner bool
	}{
		{name: "missing client", mutate: func(r *EnrollRequest) {}, noOwner: true},
		{name: "missing service", mutate: func(r *EnrollRequest) { r.ServiceID = uuid.Nil }},
		{name: "missing employee", mutate: func(r *EnrollRequest) { r.EmployeeID = uuid.Nil }},
		{name: "missing slot time", mutate: func(r *EnrollRequest) { r.RequestedAt = time.Time{} }},
		{name: "zero duration", mutate: func(r *EnrollRequest) { r.DurationMinutes = 0 }},
		{name: "negative price", mutate: func(r *EnrollRequest) { r.TotalPrice = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid()
			tc.mutate(req)
			clientID := uuid.New()
			if tc.noOwner {
				clientID = uuid.Nil
			}

			_, err := env.svc.Enroll(context.Background(), clientID, req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("got %v, want ValidationError", err)
			}
		})
	}
}

func TestCancel_RenumbersRemainingWaiting(t *testing.T) {
	env := newTestEnv(t)
	key := testGroupKey()

	ownerB := uuid.New()
	a := env.enroll(t, key, uuid.New())
	b := env.enroll(t, key, ownerB)
	c := env.enroll(t, key, uuid.New())

	if err := env.svc.Cancel(context.Background(), b.ID, ownerB, RoleCustomer); err != nil {
		t.Fatalf("failed to cancel: %v", err)
	}

	if got := env.getEntry(t, b.ID); got.Status != StatusCancelled {
		t.Errorf("cancelled entry: got status %s, want CANCELLED", got.Status)
	}
	if got := env.getEntry(t, a.ID); got.Position != 1 {
		t.Errorf("entry ahead of cancellation: got position %d, want 1", got.Position)
	}
	if got := env.getEntry(t, c.ID); got.Position != 2 {
		t.Errorf("entry behind cancellation: got position %d, want 2", got.Position)
	}

	// A plain waiting cancellation must not hand out an offer.
	if len(env.notifier.offers) != 0 {
		t.Errorf("got %d offers, want 0", len(env.notifier.offers))
	}
}

func TestCancel_ForbiddenForNonOwner(t *testing.T) {
	env := newTestEnv(t)
	key := testGroupKey()

	a := env.enroll(t, key, uuid.New())

	err := env.svc.Cancel(context.Background(), a.ID, uuid.New(), RoleCustomer)
	var ferr *ForbiddenError
	if !errors.As(err, &ferr) {
		t.Fatalf("got %v, want ForbiddenError", err)
	}
	if got := env.getEntry(t, a.ID); got.Status != StatusWaiting {
		t.Errorf("entry after forbidden cancel: got status %s, want WAITING", got.Status)
	}

	// Admins may cancel anyone's entry.
	if err := env.svc.Cancel(context.Background(), a.ID, uuid.New(), RoleAdmin); err != nil {
		t.Fatalf("admin cancel failed: %v", err)
	}
}

func TestCancel_TerminalEntryConflicts(t *testing.T) {
	env := newTestEnv(t)
	key := testGroupKey()
	owner := uuid.New()

	a := env.enroll(t, key, owner)
	if err := env.svc.Cancel(context.Background(), a.ID, owner, RoleCustomer); err != nil {
		t.Fatalf("failed to cancel: %v", err)
	}

	err := env.svc.Cancel(context.Background(), a.ID, owner, RoleCustomer)
	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("got %v, want ConflictError", err)
	}
}

func TestCancel_UnknownEntryNotFound(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.Cancel(context.Background(), uuid.New(), uuid.New(), RoleAdmin)
	var nferr *NotFoundError
	if !errors.As(err, &nferr) {
		t.Fatalf("got %v, want NotFoundError", err)
	}
}

func TestOnSlotFreed_PromotesTopEntry(t *testing.T) {
	env := newTestEnv(t)
	key := testGroupKey()

	a := env.enroll(t, key, uuid.New())
	b := env.enroll(t, key, uuid.New())
	c := env.enroll(t, key, uuid.New())

	if err := env.svc.OnSlotFreed(context.Background(), key.ServiceID, key.EmployeeID, key.RequestedAt); err != nil {
		t.Fatalf("failed to handle freed slot: %v", err)
	}

	promoted := env.getEntry(t, a.ID)
	if promoted.Status != StatusNotified {
		t.Fatalf("promoted entry: got status %s, want NOTIFIED", promoted.Status)
	}
	if promoted.NotificationSentAt == nil || promoted.NotificationExpiresAt == nil {
		t.Fatal("promoted entry is missing notification timestamps")
	}
	window := promoted.NotificationExpiresAt.Sub(*promoted.NotificationSentAt)
	if window != 15*time.Minute {
		t.Errorf("confirmation window: got %v, want 15m", window)
	}

	if got := env.getEntry(t, b.ID); got.Position != 1 {
		t.Errorf("next waiting entry: got position %d, want 1", got.Position)
	}
	if got := env.getEntry(t, c.ID); got.Position != 2 {
		t.Errorf("last waiting entry: got position %d, want 2", got.Position)
	}

	if len(env.notifier.offers) != 1 || env.notifier.offers[0] != a.ID {
		t.Errorf("offers dispatched: got %v, want [%s]", env.notifier.offers, a.ID)
	}

	var sent []WaitlistNotification
	if err := env.db.Where("waitlist_entry_id = ?", a.ID).Find(&sent).Error; err != nil {
		t.Fatalf("failed to load notifications: %v", err)
	}
	if len(sent) != 1 || sent[0].Status != NotificationStatusSent {
		t.Errorf("notification audit: got %+v, want one SENT record", sent)
	}
}

func TestOnSlotFreed_NoopWhileOfferOutstanding(t *testing.T) {
	env := newTestEnv(t)
	key := testGroupKey()

	env.enroll(t, key, uuid.New())
	env.enroll(t, key, uuid.New())

	for i := 0; i < 3; i++ {
		if err := env.svc.OnSlotFreed(context.Background(), key.ServiceID, key.EmployeeID, key.RequestedAt); err != nil {
			t.Fatalf("freed slot round %d: %v", i, err)
		}
	}

	var notified int64
	err := env.db.Model(&WaitlistEntry{}).
		Where("service_id = ? AND status = ?", key.ServiceID, StatusNotified).
		Count(&notified).Error
	if err != nil {
		t.Fatalf("failed to count notified: %v", err)
	}
	if notified != 1 {
		t.Errorf("notified entries in group: got %d, want 1", notified)
	}
	if len(env.notifier.offers) != 1 {
		t.Errorf("offers dispatched: got %d, want 1", len(env.notifier.offers))
	}
}

func TestOnSlotFreed_EmptyGroupIsNoop(t *testing.T) {
	env := newTestEnv(t)
	key := testGroupKey()

	if err := env.svc.OnSlotFreed(context.Background(), key.ServiceID, key.EmployeeID, key.RequestedAt); err != nil {
		t.Fatalf("freed slot on empty group: %v", err)
	}
	if len(env.notifier.offers) != 0 {
		t.Errorf("offers dispatched: got %d, want 0", len(env.notifier.offers))
	}
}

func TestOnSlotFreed_SkipsPatienceLapsedEntries(t *testing.T) {
	env := newTestEnv(t)
	key := testGroupKey()

	stale := env.enroll(t, key, uuid.New())
	fresh := env.enroll(t, key, uuid.New())
	env.backdate(t, stale.ID, "expires_at")

	if err := env.svc.OnSlotFreed(context.Background(), key.ServiceID, key.EmployeeID, key.RequestedAt); err != nil {
		t.Fatalf("failed to handle freed slot: %v", err)
	}

	if got := env.getEntry(t, fresh.ID); got.Status != StatusNotified {
		t.Errorf("fresh entry: got status %s, want NOTIFIED", got.Status)
	}
	// The lapsed entry is left for the sweeper rather than promoted.
	if got := env.getEntry(t, stale.ID); got.Status != StatusWaiting {
		t.Errorf("lapsed entry: got status %s, want WAITING", got.Status)
	}
}

func TestConfirm_CreatesBookingWithoutCascade(t *testing.T) {
	env := newTestEnv(t)
	key := testGroupKey()

	a := env.enroll(t, key, uuid.New())
	b := env.enroll(t, key, uuid.New())
	if err := env.svc.OnSlotFreed(context.Background(), key.ServiceID, key.EmployeeID, key.RequestedAt); err != nil {
		t.Fatalf("failed to handle freed slot: %v", err)
	}

	if err := env.svc.Confirm(context.Background(), a.ID); err != nil {
		t.Fatalf("failed to confirm: %v", err)
	}

	if got := env.getEntry(t, a.ID); got.Status != StatusConfirmed {
		t.Errorf("confirmed entry: got status %s, want CONFIRMED", got.Status)
	}
	if len(env.bookings.created) != 1 || env.bookings.created[0] != a.ID {
		t.Errorf("bookings created: got %v, want [%s]", env.bookings.created, a.ID)
	}

	// The slot is taken; B must not receive an offer.
	if got := env.getEntry(t, b.ID); got.Status != StatusWaiting || got.Position != 1 {
		t.Errorf("remaining entry: got status %s position %d, want WAITING 1", got.Status, got.Position)
	}
	if len(env.notifier.offers) != 1 {
		t.Errorf("offers dispatched: got %d, want 1", len(env.notifier.offers))
	}
}

func TestConfirm_WaitingEntryConflicts(t *testing.T) {
	env := newTestEnv(t)

	a := env.enroll(t, testGroupKey(), uuid.New())

	err := env.svc.Confirm(context.Background(), a.ID)
	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("got %v, want ConflictError", err)
	}
	if got := env.getEntry(t, a.ID); got.Status != StatusWaiting {
		t.Errorf("entry after rejected confirm: got status %s, want WAITING", got.Status)
	}
}

func TestConfirm_SecondConfirmConflicts(t *testing.T) {
	env := newTestEnv(t)
	key := testGroupKey()

	a := env.enroll(t, key, uuid.New())
	if err := env.svc.OnSlotFreed(context.Background(), key.ServiceID, key.EmployeeID, key.RequestedAt); err != nil {
		t.Fatalf("failed to handle freed slot: %v", err)
	}
	if err := env.svc.Confirm(context.Background(), a.ID); err != nil {
		t.Fatalf("first confirm failed: %v", err)
	}

	err := env.svc.Confirm(context.Background(), a.ID)
	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("got %v, want ConflictError", err)
	}
	if len(env.bookings.created) != 1 {
		t.Errorf("bookings created: got %d, want 1", len(env.bookings.created))
	}
}

func TestConfirm_LapsedWindowExpiresAndCascades(t *testing.T) {
	env := newTestEnv(t)
	key := testGroupKey()

	a := env.enroll(t, key, uuid.New())
	b := env.enroll(t, key, uuid.New())
	if err := env.svc.OnSlotFreed(context.Background(), key.ServiceID, key.EmployeeID, key.RequestedAt); err != nil {
		t.Fatalf("failed to handle freed slot: %v", err)
	}
	env.backdate(t, a.ID, "notification_expires_at")

	err := env.svc.Confirm(context.Background(), a.ID)
	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("got %v, want ConflictError", err)
	}

	// The late confirm resolves exactly as a sweep would have.
	if got := env.getEntry(t, a.ID); got.Status != StatusExpired {
		t.Errorf("late entry: got status %s, want EXPIRED", got.Status)
	}
	if got := env.getEntry(t, b.ID); got.Status != StatusNotified {
		t.Errorf("successor: got status %s, want NOTIFIED", got.Status)
	}
	if len(env.notifier.offers) != 2 || env.notifier.offers[1] != b.ID {
		t.Errorf("offers dispatched: got %v, want cascade offer to %s", env.notifier.offers, b.ID)
	}
	if len(env.bookings.created) != 0 {
		t.Errorf("bookings created: got %d, want 0", len(env.bookings.created))
	}
}

func TestCancel_NotifiedEntryCascades(t *testing.T) {
	env := newTestEnv(t)
	key := testGroupKey()
	ownerA := uuid.New()

	a := env.enroll(t, key, ownerA)
	b := env.enroll(t, key, uuid.New())
	if err := env.svc.OnSlotFreed(context.Background(), key.ServiceID, key.EmployeeID, key.RequestedAt); err != nil {
		t.Fatalf("failed to handle freed slot: %v", err)
	}

	if err := env.svc.Cancel(context.Background(), a.ID, ownerA, RoleCustomer); err != nil {
		t.Fatalf("failed to cancel offer holder: %v", err)
	}

	if got := env.getEntry(t, a.ID); got.Status != StatusCancelled {
		t.Errorf("cancelled holder: got status %s, want CANCELLED", got.Status)
	}
	next := env.getEntry(t, b.ID)
	if next.Status != StatusNotified || next.Position != 0 {
		t.Errorf("successor: got status %s position %d, want NOTIFIED 0", next.Status, next.Position)
	}
	if len(env.notifier.offers) != 2 || env.notifier.offers[1] != b.ID {
		t.Errorf("offers dispatched: got %v, want cascade offer to %s", env.notifier.offers, b.ID)
	}
}

func TestSweep_ExpiredOfferCascades(t *testing.T) {
	env := newTestEnv(t)
	key := testGroupKey()
	ownerB := uuid.New()

	a := env.enroll(t, key, uuid.New())
	b := env.enroll(t, key, ownerB)
	c := env.enroll(t, key, uuid.New())

	if err := env.svc.Cancel(context.Background(), b.ID, ownerB, RoleCustomer); err != nil {
		t.Fatalf("failed to cancel: %v", err)
	}
	if err := env.svc.OnSlotFreed(context.Background(), key.ServiceID, key.EmployeeID, key.RequestedAt); err != nil {
		t.Fatalf("failed to handle freed slot: %v", err)
	}
	env.backdate(t, a.ID, "notification_expires_at")

	result, err := env.svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if result.ProcessedCount != 1 {
		t.Errorf("sweep processed: got %d, want 1", result.ProcessedCount)
	}

	if got := env.getEntry(t, a.ID); got.Status != StatusExpired {
		t.Errorf("swept entry: got status %s, want EXPIRED", got.Status)
	}
	next := env.getEntry(t, c.ID)
	if next.Status != StatusNotified {
		t.Errorf("successor: got status %s, want NOTIFIED", next.Status)
	}
	if len(env.notifier.offers) != 2 || env.notifier.offers[1] != c.ID {
		t.Errorf("offers dispatched: got %v, want cascade offer to %s", env.notifier.offers, c.ID)
	}
}

func TestSweep_ExpiresPatienceLapsedWaiting(t *testing.T) {
	env := newTestEnv(t)
	key := testGroupKey()

	a := env.enroll(t, key, uuid.New())
	b := env.enroll(t, key, uuid.New())
	env.backdate(t, a.ID, "expires_at")

	result, err := env.svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if result.ProcessedCount != 1 {
		t.Errorf("sweep processed: got %d, want 1", result.ProcessedCount)
	}

	if got := env.getEntry(t, a.ID); got.Status != StatusExpired {
		t.Errorf("lapsed entry: got status %s, want EXPIRED", got.Status)
	}
	// Patience expiry of a waiting entry frees no slot, only a place in line.
	if got := env.getEntry(t, b.ID); got.Status != StatusWaiting || got.Position != 1 {
		t.Errorf("remaining entry: got status %s position %d, want WAITING 1", got.Status, got.Position)
	}
	if len(env.notifier.offers) != 0 {
		t.Errorf("offers dispatched: got %d, want 0", len(env.notifier.offers))
	}
}

func TestSweep_IsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	key := testGroupKey()

	a := env.enroll(t, key, uuid.New())
	env.backdate(t, a.ID, "expires_at")

	first, err := env.svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("first sweep failed: %v", err)
	}
	if first.ProcessedCount != 1 {
		t.Errorf("first sweep processed: got %d, want 1", first.ProcessedCount)
	}

	second, err := env.svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if second.ProcessedCount != 0 {
		t.Errorf("second sweep processed: got %d, want 0", second.ProcessedCount)
	}
}

func TestSweep_NothingDue(t *testing.T) {
	env := newTestEnv(t)

	env.enroll(t, testGroupKey(), uuid.New())

	result, err := env.svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if result.ProcessedCount != 0 {
		t.Errorf("sweep processed: got %d, want 0", result.ProcessedCount)
	}
}

func TestDispatchFailure_EntryStaysNotified(t *testing.T) {
	env := newTestEnv(t)
	key := testGroupKey()
	env.notifier.err = errors.New("broker unreachable")

	a := env.enroll(t, key, uuid.New())

	if err := env.svc.OnSlotFreed(context.Background(), key.ServiceID, key.EmployeeID, key.RequestedAt); err != nil {
		t.Fatalf("freed slot must not surface dispatch failures: %v", err)
	}

	if got := env.getEntry(t, a.ID); got.Status != StatusNotified {
		t.Errorf("entry after failed dispatch: got status %s, want NOTIFIED", got.Status)
	}

	var records []WaitlistNotification
	if err := env.db.Where("waitlist_entry_id = ?", a.ID).Find(&records).Error; err != nil {
		t.Fatalf("failed to load notifications: %v", err)
	}
	if len(records) != 1 || records[0].Status != NotificationStatusFailed {
		t.Fatalf("notification audit: got %+v, want one FAILED record", records)
	}
	if records[0].ErrorMessage == nil || *records[0].ErrorMessage == "" {
		t.Error("failed record is missing its error message")
	}
}

func TestGetEntry_ReportsConfirmationRemaining(t *testing.T) {
	env := newTestEnv(t)
	key := testGroupKey()

	a := env.enroll(t, key, uuid.New())

	resp, err := env.svc.GetEntry(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("failed to get entry: %v", err)
	}
	if resp.ConfirmationRemaining != nil {
		t.Errorf("waiting entry: got remaining %v, want nil", *resp.ConfirmationRemaining)
	}

	if err := env.svc.OnSlotFreed(context.Background(), key.ServiceID, key.EmployeeID, key.RequestedAt); err != nil {
		t.Fatalf("failed to handle freed slot: %v", err)
	}

	resp, err = env.svc.GetEntry(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("failed to get entry: %v", err)
	}
	if resp.ConfirmationRemaining == nil {
		t.Fatal("notified entry: got nil remaining, want a countdown")
	}
	if *resp.ConfirmationRemaining <= 0 || *resp.ConfirmationRemaining > 15*time.Minute {
		t.Errorf("remaining %v outside (0, 15m]", *resp.ConfirmationRemaining)
	}
}

func TestGroupStats_CountsPerStatus(t *testing.T) {
	env := newTestEnv(t)
	key := testGroupKey()
	ownerC := uuid.New()

	env.enroll(t, key, uuid.New())
	env.enroll(t, key, uuid.New())
	c := env.enroll(t, key, ownerC)

	if err := env.svc.OnSlotFreed(context.Background(), key.ServiceID, key.EmployeeID, key.RequestedAt); err != nil {
		t.Fatalf("failed to handle freed slot: %v", err)
	}
	if err := env.svc.Cancel(context.Background(), c.ID, ownerC, RoleCustomer); err != nil {
		t.Fatalf("failed to cancel: %v", err)
	}

	stats, err := env.svc.GroupStats(context.Background(), key)
	if err != nil {
		t.Fatalf("failed to get stats: %v", err)
	}
	if stats.TotalCount != 3 || stats.WaitingCount != 1 || stats.NotifiedCount != 1 || stats.CancelledCount != 1 {
		t.Errorf("stats: got %+v, want total=3 waiting=1 notified=1 cancelled=1", stats)
	}
}

func TestListGroupEntries_FiltersAndOrders(t *testing.T) {
	env := newTestEnv(t)
	key := testGroupKey()

	env.enroll(t, key, uuid.New())
	env.enroll(t, key, uuid.New())
	env.enroll(t, key, uuid.New())

	entries, err := env.svc.ListGroupEntries(context.Background(), key, StatusWaiting)
	if err != nil {
		t.Fatalf("failed to list entries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i, entry := range entries {
		if entry.Position != i+1 {
			t.Errorf("entry %d: got position %d, want %d", i, entry.Position, i+1)
		}
	}

	if _, err := env.svc.ListGroupEntries(context.Background(), key, Status("BOGUS")); err == nil {
		t.Error("expected a validation error for an unknown status")
	}
}

// Full lifecycle walk: enroll three, free a slot, let the first offer
// lapse, cancel the second holder, confirm the last one standing.
func TestLifecycle_CascadeChain(t *testing.T) {
	env := newTestEnv(t)
	key := testGroupKey()
	ownerB := uuid.New()

	a := env.enroll(t, key, uuid.New())
	b := env.enroll(t, key, ownerB)
	c := env.enroll(t, key, uuid.New())

	if err := env.svc.OnSlotFreed(context.Background(), key.ServiceID, key.EmployeeID, key.RequestedAt); err != nil {
		t.Fatalf("failed to handle freed slot: %v", err)
	}

	env.backdate(t, a.ID, "notification_expires_at")
	if _, err := env.svc.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if got := env.getEntry(t, b.ID); got.Status != StatusNotified {
		t.Fatalf("after sweep: got status %s for second entry, want NOTIFIED", got.Status)
	}

	if err := env.svc.Cancel(context.Background(), b.ID, ownerB, RoleCustomer); err != nil {
		t.Fatalf("failed to cancel second holder: %v", err)
	}
	if got := env.getEntry(t, c.ID); got.Status != StatusNotified {
		t.Fatalf("after cancel: got status %s for third entry, want NOTIFIED", got.Status)
	}

	if err := env.svc.Confirm(context.Background(), c.ID); err != nil {
		t.Fatalf("failed to confirm last entry: %v", err)
	}

	if got := env.getEntry(t, a.ID); got.Status != StatusExpired {
		t.Errorf("first entry: got status %s, want EXPIRED", got.Status)
	}
	if got := env.getEntry(t, b.ID); got.Status != StatusCancelled {
		t.Errorf("second entry: got status %s, want CANCELLED", got.Status)
	}
	if got := env.getEntry(t, c.ID); got.Status != StatusConfirmed {
		t.Errorf("third entry: got status %s, want CONFIRMED", got.Status)
	}
	if len(env.bookings.created) != 1 || env.bookings.created[0] != c.ID {
		t.Errorf("bookings created: got %v, want [%s]", env.bookings.created, c.ID)
	}
	if len(env.notifier.offers) != 3 {
		t.Errorf("offers dispatched: got %d, want 3", len(env.notifier.offers))
	}
}
