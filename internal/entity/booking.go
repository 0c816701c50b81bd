package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusInitiated BookingStatus = "initiated"
	BookingStatusReserved  BookingStatus = "reserved"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCheckedIn BookingStatus = "checked_in"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusExpired   BookingStatus = "expired"
	BookingStatusNoShow    BookingStatus = "no_show"
)

type PaymentStatus string

const (
	PaymentStatusNotRequired PaymentStatus = "not_required"
	PaymentStatusPending     PaymentStatus = "pending"
	PaymentStatusSuccess     PaymentStatus = "success"
	PaymentStatusFailed      PaymentStatus = "failed"
	PaymentStatusRefunded    PaymentStatus = "refunded"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusInitiated: {BookingStatusReserved},
	BookingStatusReserved:  {BookingStatusConfirmed, BookingStatusCancelled, BookingStatusExpired},
	BookingStatusConfirmed: {BookingStatusCheckedIn, BookingStatusCancelled, BookingStatusNoShow},
	BookingStatusCheckedIn: {BookingStatusCompleted, BookingStatusNoShow},
}

var legalPaymentStatuses = map[BookingStatus][]PaymentStatus{
	BookingStatusInitiated: {PaymentStatusPending, PaymentStatusNotRequired},
	BookingStatusReserved:  {PaymentStatusPending},
	BookingStatusConfirmed: {PaymentStatusSuccess, PaymentStatusNotRequired},
	BookingStatusCheckedIn: {PaymentStatusSuccess, PaymentStatusNotRequired},
	BookingStatusCompleted: {PaymentStatusSuccess, PaymentStatusNotRequired},
	BookingStatusCancelled: {PaymentStatusFailed, PaymentStatusSuccess, PaymentStatusRefunded, PaymentStatusNotRequired},
	BookingStatusExpired:   {PaymentStatusFailed},
	BookingStatusNoShow:    {PaymentStatusSuccess, PaymentStatusNotRequired},
}

func (s BookingStatus) Valid() bool {
	_, ok := legalPaymentStatuses[s]
	return ok
}

// IsTerminal reports whether no further transition leaves s.
func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, next := range bookingTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// ValidPair reports whether a booking may sit in status with the given payment status.
func ValidPair(status BookingStatus, payment PaymentStatus) bool {
	for _, p := range legalPaymentStatuses[status] {
		if p == payment {
			return true
		}
	}
	return false
}

type GuestInfo struct {
	Name  string `json:"name" binding:"required,min=2,max=100"`
	Email string `json:"email" binding:"required,email"`
	Phone string `json:"phone" binding:"omitempty,max=20"`
}

// Booking is one guest's claim on one unit for a contiguous stay.
type Booking struct {
	ID            string `json:"id" db:"id"`
	BookingNumber string `json:"booking_number" db:"booking_number"`
	UserID        string `json:"user_id" db:"user_id"`
	UnitID        string `json:"unit_id" db:"unit_id"`
	PropertyID    string `json:"property_id" db:"property_id"`
	OwnerID       string `json:"owner_id" db:"owner_id"`
	HoldID        string `json:"hold_id" db:"hold_id"`
	CouponCode    string `json:"coupon_code,omitempty" db:"coupon_code"`

	CheckIn    Date `json:"check_in" db:"check_in"`
	CheckOut   Date `json:"check_out" db:"check_out"`
	Nights     int  `json:"nights" db:"nights"`
	GuestCount int  `json:"guest_count" db:"guest_count"`

	// Snapshot captured at creation.
	Guest           GuestInfo `json:"guest"`
	PropertyName    string    `json:"property_name" db:"property_name"`
	UnitName        string    `json:"unit_name" db:"unit_name"`
	PropertyAddress string    `json:"property_address" db:"property_address"`
	BaseAmount      int64     `json:"base_amount" db:"base_amount"`
	Currency        string    `json:"currency" db:"currency"`

	Status        BookingStatus `json:"status" db:"status"`
	PaymentStatus PaymentStatus `json:"payment_status" db:"payment_status"`

	SubtotalAmount   int64 `json:"subtotal_amount" db:"subtotal_amount"`
	DiscountAmount   int64 `json:"discount_amount" db:"discount_amount"`
	TaxAmount        int64 `json:"tax_amount" db:"tax_amount"`
	ServiceFee       int64 `json:"service_fee" db:"service_fee"`
	TotalAmount      int64 `json:"total_amount" db:"total_amount"`
	CommissionAmount int64 `json:"commission_amount" db:"commission_amount"`
	PayoutAmount     int64 `json:"payout_amount" db:"payout_amount"`
	RefundAmount     int64 `json:"refund_amount" db:"refund_amount"`

	ExpiresAt          *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CheckedInAt        *time.Time `json:"checked_in_at,omitempty" db:"checked_in_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancellationReason string     `json:"cancellation_reason,omitempty" db:"cancellation_reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (b *Booking) Stay() Stay {
	return Stay{CheckIn: b.CheckIn, CheckOut: b.CheckOut}
}

// Validate checks the invariants every persisted booking must hold.
func (b *Booking) Validate() error {
	if err := b.Stay().Validate(); err != nil {
		return err
	}
	if b.Nights != b.Stay().Nights() || b.Nights < 1 {
		return fmt.Errorf("%w: nights %d do not match stay %s..%s", ErrValidation, b.Nights, b.CheckIn, b.CheckOut)
	}
	if b.TotalAmount <= 0 {
		return fmt.Errorf("%w: total amount must be positive", ErrValidation)
	}
	if !ValidPair(b.Status, b.PaymentStatus) {
		return fmt.Errorf("%w: %s/%s", ErrIllegalPairing, b.Status, b.PaymentStatus)
	}
	if b.Status == BookingStatusReserved && b.ExpiresAt == nil {
		return fmt.Errorf("%w: reserved booking without expiry", ErrIllegalPairing)
	}
	return nil
}

// ApplyTransition moves the booking to target with the matching payment status
// and stamps the derived timestamp. The caller checks permissions.
func (b *Booking) ApplyTransition(target BookingStatus, payment PaymentStatus, now time.Time) error {
	if !b.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, target)
	}
	if !ValidPair(target, payment) {
		return fmt.Errorf("%w: %s/%s", ErrInvalidTransition, target, payment)
	}

	b.Status = target
	b.PaymentStatus = payment
	b.UpdatedAt = now

	switch target {
	case BookingStatusConfirmed:
		b.ConfirmedAt = &now
		b.ExpiresAt = nil
	case BookingStatusCheckedIn:
		b.CheckedInAt = &now
	case BookingStatusCompleted:
		b.CompletedAt = &now
	case BookingStatusCancelled:
		b.CancelledAt = &now
		b.ExpiresAt = nil
	}
	return nil
}

// HoldExpired reports whether a reserved booking's hold ran out at now.
func (b *Booking) HoldExpired(now time.Time) bool {
	return b.Status == BookingStatusReserved && b.ExpiresAt != nil && !b.ExpiresAt.After(now)
}

// NewBookingNumber builds a human readable reference like SS-20240110-3F9A1C2B.
func NewBookingNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("SS-%s-%s", now.UTC().Format("20060102"), suffix)
}

type BookingExpiration struct {
	BookingID string    `json:"booking_id"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	UnitID    string    `json:"unit_id"`
}
