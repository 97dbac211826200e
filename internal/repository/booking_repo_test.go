package repository_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailhut/settlement/internal/domain"
	"github.com/trailhut/settlement/internal/repository"
)

func newRepos(t *testing.T) (*repository.BookingRepo, *repository.AuditRepo) {
	t.Helper()
	db, err := repository.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return repository.NewBookingRepo(db), repository.NewAuditRepo(db)
}

func booking(id string, status domain.PaymentStatus) domain.Booking {
	now := time.Now().UTC().Truncate(time.Second)
	return domain.Booking{
		ID:                   id,
		PartnerID:            "acct_p",
		BaseAmount:           100,
		ServiceFee:           12,
		PaymentProcessingFee: 2.26,
		CommissionPartner:    4,
		PaymentStatus:        status,
		PaymentReferenceID:   "pi_" + id,
		Currency:             "usd",
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

func TestBookingRoundTrip(t *testing.T) {
	bookings, _ := newRepos(t)
	b := booking("b1", domain.StatusPaid)
	earnings := 3.87
	b.PlatformEarnings = &earnings
	require.NoError(t, bookings.Insert(&b))

	got, err := bookings.GetByID("b1")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.InDelta(t, 100, got.BaseAmount, 0.001)
	require.NotNil(t, got.PlatformEarnings)
	assert.InDelta(t, 3.87, *got.PlatformEarnings, 0.001)
	assert.Nil(t, got.NetApplicationFee)
	assert.Equal(t, b.UpdatedAt.Unix(), got.UpdatedAt.Unix())
}

func TestGetByIDNotFound(t *testing.T) {
	bookings, _ := newRepos(t)
	_, err := bookings.GetByID("missing")
	assert.True(t, domain.IsNotFound(err))
}

func TestListReconcilable(t *testing.T) {
	bookings, _ := newRepos(t)

	eligible := booking("b1", domain.StatusPaid)
	noRef := booking("b2", domain.StatusPaid)
	noRef.PaymentReferenceID = ""
	noCommission := booking("b3", domain.StatusPaid)
	noCommission.CommissionPartner = 0
	pending := booking("b4", domain.StatusPending)

	for _, b := range []domain.Booking{eligible, noRef, noCommission, pending} {
		require.NoError(t, bookings.Insert(&b))
	}

	got, err := bookings.ListReconcilable()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b1", got[0].ID)
}

func TestUpdateGuarded(t *testing.T) {
	bookings, _ := newRepos(t)
	b := booking("b1", domain.StatusPaid)
	require.NoError(t, bookings.Insert(&b))

	readAt := b.UpdatedAt
	b.PaymentStatus = domain.StatusRefunded
	b.UpdatedAt = readAt.Add(time.Second)
	require.NoError(t, bookings.UpdateGuarded(&b, readAt))

	// Same expected timestamp again: the row moved on, the write must lose.
	b.PaymentStatus = domain.StatusPaid
	err := bookings.UpdateGuarded(&b, readAt)
	assert.True(t, domain.IsConcurrency(err))

	got, err := bookings.GetByID("b1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, got.PaymentStatus)
}

// Two operator actions inside the same wall-clock second must still be
// distinguishable: the guard compares full nanosecond timestamps, not a
// second-truncated rendering.
func TestUpdateGuardedSubSecondResolution(t *testing.T) {
	bookings, _ := newRepos(t)
	b := booking("b1", domain.StatusPaid)
	require.NoError(t, bookings.Insert(&b))

	readAt := b.UpdatedAt
	b.PaymentStatus = domain.StatusPartiallyRefunded
	b.UpdatedAt = readAt.Add(300 * time.Millisecond)
	require.NoError(t, bookings.UpdateGuarded(&b, readAt))

	// Stale read from the same second, different sub-second instant.
	b.PaymentStatus = domain.StatusRefunded
	b.UpdatedAt = readAt.Add(700 * time.Millisecond)
	err := bookings.UpdateGuarded(&b, readAt)
	assert.True(t, domain.IsConcurrency(err))

	got, err := bookings.GetByID("b1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartiallyRefunded, got.PaymentStatus)
}

func TestUpdateDerivedFeesIdempotentTarget(t *testing.T) {
	bookings, _ := newRepos(t)
	b := booking("b1", domain.StatusPaid)
	require.NoError(t, bookings.Insert(&b))

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, bookings.UpdateDerivedFees("b1", 17.68, 3.87, now))

	got, err := bookings.GetByID("b1")
	require.NoError(t, err)
	require.NotNil(t, got.NetApplicationFee)
	assert.InDelta(t, 17.68, *got.NetApplicationFee, 0.001)
	require.NotNil(t, got.PlatformEarnings)
	assert.InDelta(t, 3.87, *got.PlatformEarnings, 0.001)

	err = bookings.UpdateDerivedFees("missing", 1, 1, now)
	assert.True(t, domain.IsNotFound(err))
}

func TestBookingList(t *testing.T) {
	bookings, _ := newRepos(t)
	for i, status := range []domain.PaymentStatus{domain.StatusPaid, domain.StatusPaid, domain.StatusRefunded} {
		b := booking(string(rune('a'+i)), status)
		require.NoError(t, bookings.Insert(&b))
	}

	paid, total, err := bookings.List(repository.BookingFilter{Status: string(domain.StatusPaid)})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, paid, 2)

	all, total, err := bookings.List(repository.BookingFilter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, all, 1)
}

func TestAuditInsertAndFind(t *testing.T) {
	_, audit := newRepos(t)

	entry := domain.AuditEntry{
		ID:           "a1",
		BookingID:    "b1",
		Kind:         domain.AuditRefund,
		RefundType:   domain.RefundPartial,
		AmountMinor:  5000,
		ProcessorRef: "re_1",
		Status:       domain.AuditSucceeded,
		Actor:        "ops",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, audit.Insert(&entry))

	found, err := audit.FindSucceededRefund("b1", domain.RefundPartial, 5000)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "re_1", found.ProcessorRef)

	// Different amount, type, or status must not match.
	miss, err := audit.FindSucceededRefund("b1", domain.RefundPartial, 4000)
	require.NoError(t, err)
	assert.Nil(t, miss)

	miss, err = audit.FindSucceededRefund("b1", domain.RefundFull, 5000)
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestAuditListFilters(t *testing.T) {
	_, audit := newRepos(t)
	now := time.Now().UTC()

	entries := []domain.AuditEntry{
		{ID: "a1", BookingID: "b1", Kind: domain.AuditRefund, Status: domain.AuditSucceeded, Actor: "ops", CreatedAt: now},
		{ID: "a2", BookingID: "b1", Kind: domain.AuditTransferReversal, Status: domain.AuditManualReview, Actor: "ops", CreatedAt: now},
		{ID: "a3", BookingID: "b2", Kind: domain.AuditReconciliation, Status: domain.AuditSucceeded, Actor: "reconciler", CreatedAt: now},
	}
	for i := range entries {
		require.NoError(t, audit.Insert(&entries[i]))
	}

	byBooking, total, err := audit.List(repository.AuditFilter{BookingID: "b1"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, byBooking, 2)

	manual, total, err := audit.List(repository.AuditFilter{Status: string(domain.AuditManualReview)})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "a2", manual[0].ID)
}
