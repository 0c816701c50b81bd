package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sunilkarki98/staysewa-sub001/config"
	repository "github.com/sunilkarki98/staysewa-sub001/internal/database/postgres"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
)

type bookingService struct {
	store      repository.Store
	cache      AvailabilityCache
	dispatcher *Dispatcher
	cfg        config.BookingConfig
	now        Clock
}

// NewBookingService wires the booking state machine to its store and dispatcher.
func NewBookingService(
	store repository.Store,
	cache AvailabilityCache,
	dispatcher *Dispatcher,
	cfg config.BookingConfig,
	clock Clock,
) BookingService {
	return &bookingService{
		store:      store,
		cache:      orNoopCache(cache),
		dispatcher: dispatcher,
		cfg:        cfg,
		now:        orSystemClock(clock),
	}
}

// CreateBooking prices the stay, takes the inventory, redeems the coupon and
// persists a reserved booking in one transaction.
func (s *bookingService) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*entity.Booking, error) {
	stay := entity.Stay{CheckIn: req.CheckIn, CheckOut: req.CheckOut}
	if err := stay.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	if stay.CheckIn.Before(entity.DateOf(now)) {
		return nil, fmt.Errorf("%w: check-in %s is in the past", entity.ErrInvalidDateRange, stay.CheckIn)
	}
	if s.cfg.MaxNights > 0 && stay.Nights() > s.cfg.MaxNights {
		return nil, fmt.Errorf("%w: stays are limited to %d nights", entity.ErrValidation, s.cfg.MaxNights)
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user is required", entity.ErrValidation)
	}

	var booking *entity.Booking
	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		unit, err := repos.Units().GetByID(ctx, req.UnitID)
		if err != nil {
			return err
		}

		quote, err := quoteStay(ctx, repos, unit, stay, req.GuestCount, s.cfg)
		if err != nil {
			return err
		}
		if stay.Nights() < quote.MinNights {
			return fmt.Errorf("%w: minimum stay is %d nights", entity.ErrValidation, quote.MinNights)
		}

		hold, err := placeHold(ctx, repos, unit.ID, stay, 1, now)
		if err != nil {
			return err
		}

		var (
			coupon   *entity.Coupon
			discount int64
		)
		if req.CouponCode != "" {
			coupon, discount, err = lockCoupon(ctx, repos, req.CouponCode, quote.Subtotal, unit.PropertyID, req.UserID, now)
			if err != nil {
				return err
			}
		}

		taxable := quote.Subtotal - discount
		expiresAt := now.Add(s.cfg.HoldWindow)
		b := &entity.Booking{
			ID:              uuid.NewString(),
			BookingNumber:   entity.NewBookingNumber(now),
			UserID:          req.UserID,
			UnitID:          unit.ID,
			PropertyID:      unit.PropertyID,
			OwnerID:         unit.OwnerID,
			HoldID:          hold.ID,
			CheckIn:         stay.CheckIn,
			CheckOut:        stay.CheckOut,
			Nights:          stay.Nights(),
			GuestCount:      req.GuestCount,
			Guest:           req.Guest,
			PropertyName:    unit.PropertyName,
			UnitName:        unit.Name,
			PropertyAddress: unit.PropertyAddress,
			BaseAmount:      unit.BasePrice,
			Currency:        quote.Currency,
			Status:          entity.BookingStatusReserved,
			PaymentStatus:   entity.PaymentStatusPending,
			SubtotalAmount:  quote.Subtotal,
			DiscountAmount:  discount,
			TaxAmount:       applyRate(taxable, s.cfg.TaxRate),
			ServiceFee:      applyRate(taxable, s.cfg.ServiceFeeRate),
			ExpiresAt:       &expiresAt,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		b.TotalAmount = taxable + b.TaxAmount + b.ServiceFee
		if coupon != nil {
			b.CouponCode = coupon.Code
			if b.TotalAmount <= 0 {
				return fmt.Errorf("%w: discount leaves nothing to pay", entity.ErrCouponInvalid)
			}
		}

		if err := repos.Bookings().Create(ctx, b); err != nil {
			return fmt.Errorf("failed to create booking: %w", err)
		}
		if coupon != nil {
			if err := redeemCoupon(ctx, repos, coupon, req.UserID, b.ID, discount, now); err != nil {
				return err
			}
		}

		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"unit_id":    booking.UnitID,
		"check_in":   booking.CheckIn.String(),
		"check_out":  booking.CheckOut.String(),
		"total":      booking.TotalAmount,
	}).Info("Booking reserved")

	invalidateAvailability(ctx, s.cache, booking.UnitID)
	s.dispatcher.bookingChanged(booking, now, notice{
		userID: booking.UserID,
		title:  "Booking reserved",
		body: fmt.Sprintf("%s at %s is held for you until %s. Complete the payment of %s to confirm it.",
			booking.BookingNumber, booking.PropertyName, booking.ExpiresAt.Format(time.RFC1123), formatAmount(booking.TotalAmount, booking.Currency)),
	})
	return booking, nil
}

// GetBooking is visible to the guest, the unit owner and admins.
func (s *bookingService) GetBooking(ctx context.Context, id string, actor entity.Actor) (*entity.Booking, error) {
	b, err := s.store.Bookings().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(b, actor) {
		return nil, fmt.Errorf("%w: booking belongs to another user", entity.ErrForbidden)
	}
	return b, nil
}

func (s *bookingService) ListBookings(ctx context.Context, actor entity.Actor) ([]*entity.Booking, error) {
	switch actor.Role {
	case entity.RoleOwner:
		return s.store.Bookings().GetByOwnerID(ctx, actor.ID)
	case entity.RoleCustomer, entity.RoleAdmin:
		return s.store.Bookings().GetByUserID(ctx, actor.ID)
	}
	return nil, fmt.Errorf("%w: role %q cannot list bookings", entity.ErrForbidden, actor.Role)
}

// TransitionStatus applies a user driven transition. Permission is checked
// before legality.
func (s *bookingService) TransitionStatus(ctx context.Context, id string, target entity.BookingStatus, actor entity.Actor, reason string) (*entity.Booking, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", entity.ErrValidation, target)
	}
	if target == entity.BookingStatusExpired {
		if actor.Role != entity.RoleSystem {
			return nil, fmt.Errorf("%w: only the system expires bookings", entity.ErrForbidden)
		}
		if err := s.ExpireBooking(ctx, id); err != nil {
			return nil, err
		}
		return s.store.Bookings().GetByID(ctx, id)
	}

	now := s.now()
	var (
		updated  *entity.Booking
		released bool
	)
	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		// Payments lock before the booking row, matching finalize.
		var payments []*entity.Payment
		if target == entity.BookingStatusCancelled {
			var err error
			if payments, err = repos.Payments().GetByBookingIDWithLock(ctx, id); err != nil {
				return fmt.Errorf("failed to lock payments: %w", err)
			}
		}
		b, err := repos.Bookings().GetWithLock(ctx, id)
		if err != nil {
			return err
		}
		if err := authorizeTransition(b, target, actor); err != nil {
			return err
		}
		if !b.Status.CanTransitionTo(target) {
			return fmt.Errorf("%w: %s -> %s", entity.ErrInvalidTransition, b.Status, target)
		}

		payment := b.PaymentStatus
		switch target {
		case entity.BookingStatusConfirmed:
			// Confirmation follows a settled payment only.
			if payment != entity.PaymentStatusSuccess && payment != entity.PaymentStatusNotRequired {
				return fmt.Errorf("%w: payment is %s", entity.ErrInvalidTransition, payment)
			}
		case entity.BookingStatusCancelled:
			payment = s.cancellationTerms(b, now)
			if _, err := releaseHold(ctx, repos, b.HoldID); err != nil {
				return err
			}
			if err := failOpenPayments(ctx, repos, payments, "booking cancelled", now); err != nil {
				return err
			}
			b.CancellationReason = reason
			released = true
		}

		if err := b.ApplyTransition(target, payment, now); err != nil {
			return err
		}
		if err := repos.Bookings().Update(ctx, b); err != nil {
			return fmt.Errorf("failed to update booking: %w", err)
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"booking_id": updated.ID,
		"status":     updated.Status,
		"actor":      actor.ID,
		"role":       actor.Role,
	}).Info("Booking status changed")

	if released {
		invalidateAvailability(ctx, s.cache, updated.UnitID)
	}
	s.dispatcher.bookingChanged(updated, now, transitionNotices(updated)...)
	return updated, nil
}

func (s *bookingService) GetExpiredBookings(ctx context.Context, before time.Time, limit int) ([]*entity.BookingExpiration, error) {
	return s.store.Bookings().GetExpiredBookings(ctx, before, limit)
}

// ExpireBooking releases the hold of a reserved booking whose window has
// passed. Bookings that moved on in the meantime yield ErrInvalidTransition.
func (s *bookingService) ExpireBooking(ctx context.Context, bookingID string) error {
	now := s.now()
	var expired *entity.Booking
	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		payments, err := repos.Payments().GetByBookingIDWithLock(ctx, bookingID)
		if err != nil {
			return fmt.Errorf("failed to lock payments: %w", err)
		}
		b, err := repos.Bookings().GetWithLock(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != entity.BookingStatusReserved {
			return fmt.Errorf("%w: booking is %s", entity.ErrInvalidTransition, b.Status)
		}
		if !b.HoldExpired(now) {
			return fmt.Errorf("%w: hold is still active", entity.ErrInvalidTransition)
		}

		if _, err := releaseHold(ctx, repos, b.HoldID); err != nil {
			return err
		}
		if err := failOpenPayments(ctx, repos, payments, "booking expired", now); err != nil {
			return err
		}
		if err := b.ApplyTransition(entity.BookingStatusExpired, entity.PaymentStatusFailed, now); err != nil {
			return err
		}
		if err := repos.Bookings().Update(ctx, b); err != nil {
			return fmt.Errorf("failed to update booking: %w", err)
		}
		expired = b
		return nil
	})
	if err != nil {
		return err
	}

	logrus.WithField("booking_id", bookingID).Info("Booking expired")
	invalidateAvailability(ctx, s.cache, expired.UnitID)
	s.dispatcher.bookingChanged(expired, now, transitionNotices(expired)...)
	return nil
}

// cancellationTerms settles money for a cancellation. Confirmed stays
// cancelled at least FreeCancellationHours before check-in are refunded in full.
func (s *bookingService) cancellationTerms(b *entity.Booking, now time.Time) entity.PaymentStatus {
	switch b.PaymentStatus {
	case entity.PaymentStatusPending:
		return entity.PaymentStatusFailed
	case entity.PaymentStatusSuccess:
		cutoff := b.CheckIn.Time.Add(-time.Duration(s.cfg.FreeCancellationHours) * time.Hour)
		if now.Before(cutoff) {
			b.RefundAmount = b.TotalAmount
			b.CommissionAmount = 0
			b.PayoutAmount = 0
			return entity.PaymentStatusRefunded
		}
		return entity.PaymentStatusSuccess
	}
	return b.PaymentStatus
}

// failOpenPayments closes payment attempts that can no longer settle the
// booking. The caller holds their row locks.
func failOpenPayments(ctx context.Context, repos repository.Repositories, payments []*entity.Payment, reason string, now time.Time) error {
	for _, p := range payments {
		if p.Status != entity.TransactionStatusInitiated {
			continue
		}
		p.Status = entity.TransactionStatusFailed
		p.FailureReason = reason
		p.FailedAt = &now
		p.UpdatedAt = now
		if err := repos.Payments().Update(ctx, p); err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}
	}
	return nil
}

func canView(b *entity.Booking, actor entity.Actor) bool {
	return actor.IsAdmin() || b.UserID == actor.ID || (actor.Role == entity.RoleOwner && b.OwnerID == actor.ID)
}

func authorizeTransition(b *entity.Booking, target entity.BookingStatus, actor entity.Actor) error {
	if actor.IsAdmin() {
		return nil
	}
	switch actor.Role {
	case entity.RoleOwner:
		if b.OwnerID == actor.ID {
			return nil
		}
	case entity.RoleCustomer:
		if b.UserID == actor.ID && target == entity.BookingStatusCancelled {
			return nil
		}
	}
	if !canView(b, actor) {
		return fmt.Errorf("%w: booking belongs to another user", entity.ErrForbidden)
	}
	return fmt.Errorf("%w: %s cannot move a booking to %s", entity.ErrForbidden, actor.Role, target)
}

func transitionNotices(b *entity.Booking) []notice {
	switch b.Status {
	case entity.BookingStatusConfirmed:
		return []notice{
			{userID: b.UserID, title: "Booking confirmed", body: fmt.Sprintf("%s at %s is confirmed for %s to %s.", b.BookingNumber, b.PropertyName, b.CheckIn, b.CheckOut)},
			{userID: b.OwnerID, title: "New booking", body: fmt.Sprintf("%s for %s from %s to %s, payout %s.", b.BookingNumber, b.UnitName, b.CheckIn, b.CheckOut, formatAmount(b.PayoutAmount, b.Currency))},
		}
	case entity.BookingStatusCancelled:
		guest := fmt.Sprintf("%s has been cancelled.", b.BookingNumber)
		if b.RefundAmount > 0 {
			guest += fmt.Sprintf(" A refund of %s is on its way.", formatAmount(b.RefundAmount, b.Currency))
		}
		return []notice{
			{userID: b.UserID, title: "Booking cancelled", body: guest},
			{userID: b.OwnerID, title: "Booking cancelled", body: fmt.Sprintf("%s for %s from %s to %s was cancelled.", b.BookingNumber, b.UnitName, b.CheckIn, b.CheckOut)},
		}
	case entity.BookingStatusExpired:
		return []notice{
			{userID: b.UserID, title: "Booking expired", body: fmt.Sprintf("%s expired because the payment was not completed in time.", b.BookingNumber)},
		}
	case entity.BookingStatusCheckedIn:
		return []notice{{userID: b.UserID, title: "Welcome", body: fmt.Sprintf("You are checked in at %s. Enjoy your stay.", b.PropertyName)}}
	case entity.BookingStatusCompleted:
		return []notice{{userID: b.UserID, title: "Thanks for staying", body: fmt.Sprintf("%s is complete. We hope to see you again.", b.BookingNumber)}}
	case entity.BookingStatusNoShow:
		return []notice{{userID: b.UserID, title: "Marked as no-show", body: fmt.Sprintf("%s was marked as a no-show.", b.BookingNumber)}}
	}
	return nil
}

func formatAmount(minor int64, currency string) string {
	return fmt.Sprintf("%s %d.%02d", currency, minor/100, minor%100)
}

// IsRetryable reports whether err comes from a transient condition rather
// than from the request or the booking's state.
func IsRetryable(err error) bool {
	for _, permanent := range []error{
		entity.ErrValidation, entity.ErrNotFound, entity.ErrForbidden,
		entity.ErrInvalidTransition, entity.ErrIllegalPairing,
		entity.ErrInsufficientInventory, entity.ErrCouponInvalid,
	} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	return true
}
