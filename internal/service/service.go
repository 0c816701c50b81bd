package service

import (
	"context"
	"time"

	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
)

// PricingService prices a stay night by night.
type PricingService interface {
	ComputePrice(ctx context.Context, unitID string, stay entity.Stay, guestCount int) (*entity.Quote, error)
}

// InventoryService owns the per-night ledger and the holds placed against it.
type InventoryService interface {
	// Ledger operations
	PlaceHold(ctx context.Context, unitID string, stay entity.Stay, quantity int) (string, error)
	CommitHold(ctx context.Context, holdID string) error
	ReleaseHold(ctx context.Context, holdID string) error

	// Calendar operations
	GetAvailability(ctx context.Context, unitID string, from, to entity.Date) ([]*entity.InventorySlot, error)
	SetCapacity(ctx context.Context, update entity.CapacityUpdate, actor entity.Actor) error
}

type CouponService interface {
	// Apply returns the discount code would give on bookingAmount without redeeming it.
	Apply(ctx context.Context, code string, bookingAmount int64, propertyID, userID string) (int64, error)
}

type BookingService interface {
	// Core operations
	CreateBooking(ctx context.Context, req *CreateBookingRequest) (*entity.Booking, error)
	GetBooking(ctx context.Context, id string, actor entity.Actor) (*entity.Booking, error)
	ListBookings(ctx context.Context, actor entity.Actor) ([]*entity.Booking, error)
	TransitionStatus(ctx context.Context, id string, target entity.BookingStatus, actor entity.Actor, reason string) (*entity.Booking, error)

	// Expiration operations
	GetExpiredBookings(ctx context.Context, before time.Time, limit int) ([]*entity.BookingExpiration, error)
	ExpireBooking(ctx context.Context, bookingID string) error
}

type PaymentService interface {
	Initiate(ctx context.Context, bookingID string, amount int64, actor entity.Actor) (*entity.GatewayIntent, error)
	Verify(ctx context.Context, pidx string) (*entity.PaymentOutcome, error)
	HandleWebhook(ctx context.Context, payload entity.WebhookPayload) *entity.PaymentOutcome
	Finalize(ctx context.Context, pidx, bookingID string, lookup *entity.GatewayLookup) (*entity.PaymentOutcome, error)
}

// CreateBookingRequest is what a guest submits to reserve a unit.
type CreateBookingRequest struct {
	UserID     string           `json:"-"`
	UnitID     string           `json:"unit_id" binding:"required"`
	CheckIn    entity.Date      `json:"check_in"`
	CheckOut   entity.Date      `json:"check_out"`
	GuestCount int              `json:"guest_count" binding:"required,min=1,max=50"`
	Guest      entity.GuestInfo `json:"guest" binding:"required"`
	CouponCode string           `json:"coupon_code" binding:"omitempty,max=50"`
}

// PaymentGateway is the external charge provider.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, req entity.IntentRequest) (*entity.GatewayIntent, error)
	Lookup(ctx context.Context, pidx string) (*entity.GatewayLookup, error)
}

// Notifier delivers a message to a user and reports whether it was accepted.
type Notifier interface {
	Notify(ctx context.Context, userID, title, body string, metadata map[string]string) bool
}

// EventPublisher emits booking lifecycle events.
type EventPublisher interface {
	PublishBookingEvent(ctx context.Context, event entity.BookingEvent) error
}

// AvailabilityCache is an optional read-through cache for availability
// calendars. It is never consulted when taking inventory.
type AvailabilityCache interface {
	Get(ctx context.Context, unitID string, from, to entity.Date) ([]*entity.InventorySlot, int64, bool, error)
	Set(ctx context.Context, unitID string, version int64, from, to entity.Date, slots []*entity.InventorySlot) error
	Invalidate(ctx context.Context, unitID string) error
}

// Clock returns the current time. Tests inject a fixed one.
type Clock func() time.Time

type noopCache struct{}

func (noopCache) Get(context.Context, string, entity.Date, entity.Date) ([]*entity.InventorySlot, int64, bool, error) {
	return nil, 0, false, nil
}

func (noopCache) Set(context.Context, string, int64, entity.Date, entity.Date, []*entity.InventorySlot) error {
	return nil
}

func (noopCache) Invalidate(context.Context, string) error { return nil }

func orNoopCache(c AvailabilityCache) AvailabilityCache {
	if c == nil {
		return noopCache{}
	}
	return c
}

func orSystemClock(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}
