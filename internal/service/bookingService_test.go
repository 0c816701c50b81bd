package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
)

func TestCreateBooking_Reserves(t *testing.T) {
	f := newFixture(t)
	f.open(10, 20, 1)

	b := f.book(testGuestID, stay(12, 15))
	f.dispatcher.Wait()

	assert.Equal(t, entity.BookingStatusReserved, b.Status)
	assert.Equal(t, entity.PaymentStatusPending, b.PaymentStatus)
	assert.Equal(t, 3, b.Nights)
	assert.Equal(t, int64(3000), b.TotalAmount)
	require.NotNil(t, b.ExpiresAt)
	assert.Equal(t, testNow.Add(15*time.Minute), *b.ExpiresAt)
	assert.Equal(t, testOwnerID, b.OwnerID)
	assert.Equal(t, "Hotel Annapurna", b.PropertyName)
	assert.Regexp(t, `^SS-20250310-[0-9A-F]{8}$`, b.BookingNumber)

	for _, night := range []int{12, 13, 14} {
		assert.Equal(t, 0, f.available(night))
	}
	assert.Equal(t, []entity.BookingEventType{entity.EventBookingReserved}, f.events.types())
	assert.Equal(t, 1, f.notifier.count("Booking reserved"))
}

func TestCreateBooking_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(req *CreateBookingRequest)
		wantErr error
	}{
		{name: "check-out before check-in", mutate: func(r *CreateBookingRequest) { r.CheckIn, r.CheckOut = day(15), day(12) }, wantErr: entity.ErrInvalidDateRange},
		{name: "check-in in the past", mutate: func(r *CreateBookingRequest) { r.CheckIn, r.CheckOut = day(9), day(11) }, wantErr: entity.ErrInvalidDateRange},
		{name: "unknown unit", mutate: func(r *CreateBookingRequest) { r.UnitID = "missing" }, wantErr: entity.ErrUnitNotFound},
		{name: "inactive unit", mutate: func(r *CreateBookingRequest) { r.UnitID = "retired" }, wantErr: entity.ErrUnitNotFound},
		{name: "too many guests", mutate: func(r *CreateBookingRequest) { r.GuestCount = 5 }, wantErr: entity.ErrValidation},
		{name: "stay too long", mutate: func(r *CreateBookingRequest) { r.CheckIn, r.CheckOut = day(12), day(12).AddDays(40) }, wantErr: entity.ErrValidation},
		{name: "sold out", mutate: func(r *CreateBookingRequest) { r.CheckIn, r.CheckOut = day(19), day(21) }, wantErr: entity.ErrInsufficientInventory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.open(10, 20, 1)
			f.store.AddUnit(&entity.Unit{ID: "retired", PropertyID: testPropertyID, OwnerID: testOwnerID, BasePrice: 1000, MaxOccupancy: 2})
			req := f.request(testGuestID, stay(12, 15))
			tt.mutate(req)

			_, err := f.bookings.CreateBooking(context.Background(), req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreateBooking_MinimumStay(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.inventory.SetCapacity(context.Background(), entity.CapacityUpdate{
		UnitID: testUnitID, From: day(10), To: day(20), AvailableCount: 1, MinNights: 2,
	}, adminActor))

	_, err := f.bookings.CreateBooking(context.Background(), f.request(testGuestID, stay(12, 13)))

	assert.ErrorIs(t, err, entity.ErrValidation)
	assert.Equal(t, 1, f.available(12))
}

func TestCreateBooking_ConcurrentOverlapsNeverOversell(t *testing.T) {
	f := newFixture(t)
	f.open(10, 20, 1)

	stays := []entity.Stay{stay(12, 15), stay(14, 16), stay(13, 14), stay(12, 13), stay(11, 13)}
	results := make([]error, len(stays))

	var wg sync.WaitGroup
	for i, s := range stays {
		wg.Add(1)
		go func(i int, s entity.Stay) {
			defer wg.Done()
			_, results[i] = f.bookings.CreateBooking(context.Background(), f.request(testGuestID, s))
		}(i, s)
	}
	wg.Wait()

	booked := make(map[string]int)
	for i, err := range results {
		if err != nil {
			assert.ErrorIs(t, err, entity.ErrInsufficientInventory)
			continue
		}
		for _, d := range stays[i].Dates() {
			booked[d.String()]++
		}
	}
	for night, count := range booked {
		assert.Equal(t, 1, count, "night %s sold more than once", night)
	}
	for night := 10; night < 20; night++ {
		assert.GreaterOrEqual(t, f.available(night), 0)
	}
}

func TestGetBooking_Visibility(t *testing.T) {
	f := newFixture(t)
	f.open(10, 20, 1)
	b := f.book(testGuestID, stay(12, 13))

	for _, actor := range []entity.Actor{guestActor, ownerActor, adminActor} {
		got, err := f.bookings.GetBooking(context.Background(), b.ID, actor)
		require.NoError(t, err, "actor %s", actor.Role)
		assert.Equal(t, b.ID, got.ID)
	}

	_, err := f.bookings.GetBooking(context.Background(), b.ID, otherActor)
	assert.ErrorIs(t, err, entity.ErrForbidden)

	_, err = f.bookings.GetBooking(context.Background(), "missing", adminActor)
	assert.ErrorIs(t, err, entity.ErrBookingNotFound)
}

func TestListBookings(t *testing.T) {
	f := newFixture(t)
	f.open(10, 20, 2)
	f.book(testGuestID, stay(12, 13))
	f.book(otherGuestID, stay(12, 13))

	mine, err := f.bookings.ListBookings(context.Background(), guestActor)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	owned, err := f.bookings.ListBookings(context.Background(), ownerActor)
	require.NoError(t, err)
	assert.Len(t, owned, 2)
}

func TestTransitionStatus_Permissions(t *testing.T) {
	tests := []struct {
		name    string
		actor   entity.Actor
		target  entity.BookingStatus
		wantErr error
	}{
		{name: "guest cancels own booking", actor: guestActor, target: entity.BookingStatusCancelled},
		{name: "owner cancels", actor: ownerActor, target: entity.BookingStatusCancelled},
		{name: "admin cancels", actor: adminActor, target: entity.BookingStatusCancelled},
		{name: "stranger cancels", actor: otherActor, target: entity.BookingStatusCancelled, wantErr: entity.ErrForbidden},
		{name: "guest checks in", actor: guestActor, target: entity.BookingStatusCheckedIn, wantErr: entity.ErrForbidden},
		{name: "owner checks in a reserved booking", actor: ownerActor, target: entity.BookingStatusCheckedIn, wantErr: entity.ErrInvalidTransition},
		{name: "manual confirm without payment", actor: adminActor, target: entity.BookingStatusConfirmed, wantErr: entity.ErrInvalidTransition},
		{name: "users cannot expire", actor: adminActor, target: entity.BookingStatusExpired, wantErr: entity.ErrForbidden},
		{name: "unknown status", actor: adminActor, target: entity.BookingStatus("teleported"), wantErr: entity.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.open(10, 20, 1)
			b := f.book(testGuestID, stay(12, 14))

			got, err := f.bookings.TransitionStatus(context.Background(), b.ID, tt.target, tt.actor, "")

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, entity.BookingStatusReserved, f.reload(b.ID).Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.target, got.Status)
		})
	}
}

func TestCancelReserved_ReleasesInventory(t *testing.T) {
	f := newFixture(t)
	f.open(10, 20, 1)
	b := f.book(testGuestID, stay(12, 15))
	intent, err := f.payments.Initiate(context.Background(), b.ID, b.TotalAmount, guestActor)
	require.NoError(t, err)

	got, err := f.bookings.TransitionStatus(context.Background(), b.ID, entity.BookingStatusCancelled, guestActor, "plans changed")
	require.NoError(t, err)
	f.dispatcher.Wait()

	assert.Equal(t, entity.BookingStatusCancelled, got.Status)
	assert.Equal(t, entity.PaymentStatusFailed, got.PaymentStatus)
	assert.Equal(t, "plans changed", got.CancellationReason)
	assert.Nil(t, got.ExpiresAt)
	require.NotNil(t, got.CancelledAt)
	for _, night := range []int{12, 13, 14} {
		assert.Equal(t, 1, f.available(night))
	}

	payment, err := f.store.Payments().GetByGatewayTxnID(context.Background(), intent.Pidx)
	require.NoError(t, err)
	assert.Equal(t, entity.TransactionStatusFailed, payment.Status)

	// Cancelling again must not hand the nights back a second time.
	_, err = f.bookings.TransitionStatus(context.Background(), b.ID, entity.BookingStatusCancelled, guestActor, "")
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)
	for _, night := range []int{12, 13, 14} {
		assert.Equal(t, 1, f.available(night))
	}
	assert.Equal(t, 2, f.notifier.count("Booking cancelled"))
}

func TestCancelConfirmed_RefundWindow(t *testing.T) {
	tests := []struct {
		name        string
		advance     time.Duration
		wantPayment entity.PaymentStatus
		wantRefund  int64
	}{
		// Check-in is 2025-03-12 00:00 UTC, the free window closes 24h earlier.
		{name: "early cancellation refunds", advance: time.Hour, wantPayment: entity.PaymentStatusRefunded, wantRefund: 3000},
		{name: "late cancellation keeps payment", advance: 40 * time.Hour, wantPayment: entity.PaymentStatusSuccess, wantRefund: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.open(10, 20, 1)
			b := f.book(testGuestID, stay(12, 15))
			pidx := f.pay(b)
			_, err := f.payments.Verify(context.Background(), pidx)
			require.NoError(t, err)

			f.clock.Advance(tt.advance)
			got, err := f.bookings.TransitionStatus(context.Background(), b.ID, entity.BookingStatusCancelled, guestActor, "")

			require.NoError(t, err)
			assert.Equal(t, entity.BookingStatusCancelled, got.Status)
			assert.Equal(t, tt.wantPayment, got.PaymentStatus)
			assert.Equal(t, tt.wantRefund, got.RefundAmount)
			assert.Equal(t, 1, f.available(12))
		})
	}
}

func TestConfirmedLifecycle(t *testing.T) {
	f := newFixture(t)
	f.open(10, 20, 1)
	b := f.book(testGuestID, stay(12, 14))
	pidx := f.pay(b)
	_, err := f.payments.Verify(context.Background(), pidx)
	require.NoError(t, err)

	got, err := f.bookings.TransitionStatus(context.Background(), b.ID, entity.BookingStatusCheckedIn, ownerActor, "")
	require.NoError(t, err)
	assert.NotNil(t, got.CheckedInAt)

	got, err = f.bookings.TransitionStatus(context.Background(), b.ID, entity.BookingStatusCompleted, ownerActor, "")
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusCompleted, got.Status)
	assert.Equal(t, entity.PaymentStatusSuccess, got.PaymentStatus)
	assert.NotNil(t, got.CompletedAt)

	_, err = f.bookings.TransitionStatus(context.Background(), b.ID, entity.BookingStatusCancelled, adminActor, "")
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)
}

func TestExpireBooking(t *testing.T) {
	f := newFixture(t)
	f.open(10, 20, 1)
	b := f.book(testGuestID, stay(12, 15))

	err := f.bookings.ExpireBooking(context.Background(), b.ID)
	assert.ErrorIs(t, err, entity.ErrInvalidTransition, "hold window still open")

	f.clock.Advance(16 * time.Minute)
	require.NoError(t, f.bookings.ExpireBooking(context.Background(), b.ID))
	f.dispatcher.Wait()

	got := f.reload(b.ID)
	assert.Equal(t, entity.BookingStatusExpired, got.Status)
	assert.Equal(t, entity.PaymentStatusFailed, got.PaymentStatus)
	assert.Equal(t, 1, f.available(12))
	assert.Equal(t, 1, f.notifier.count("Booking expired"))

	err = f.bookings.ExpireBooking(context.Background(), b.ID)
	assert.True(t, errors.Is(err, entity.ErrInvalidTransition))
	assert.Equal(t, 1, f.available(12))
}

func TestTransitionStatus_SystemExpires(t *testing.T) {
	f := newFixture(t)
	f.open(10, 20, 1)
	b := f.book(testGuestID, stay(12, 13))
	f.clock.Advance(time.Hour)

	got, err := f.bookings.TransitionStatus(context.Background(), b.ID, entity.BookingStatusExpired, entity.SystemActor, "")

	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusExpired, got.Status)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(entity.ErrBookingNotFound))
	assert.False(t, IsRetryable(entity.ErrInvalidDateRange))
	assert.True(t, IsRetryable(errors.New("connection reset")))
}
