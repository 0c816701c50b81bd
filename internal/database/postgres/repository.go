package repository

import (
	"context"
	"time"

	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
)

type BookingRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, booking *entity.Booking) error
	GetByID(ctx context.Context, id string) (*entity.Booking, error)
	Update(ctx context.Context, booking *entity.Booking) error

	// Query operations
	GetByUserID(ctx context.Context, userID string) ([]*entity.Booking, error)
	GetByOwnerID(ctx context.Context, ownerID string) ([]*entity.Booking, error)

	// Expiration operations
	GetExpiredBookings(ctx context.Context, before time.Time, limit int) ([]*entity.BookingExpiration, error)

	// Locking operations for concurrency control
	GetWithLock(ctx context.Context, id string) (*entity.Booking, error)
}

type InventoryRepository interface {
	// Hold lifecycle. ReserveRange and ReleaseRange must run inside a transaction.
	ReserveRange(ctx context.Context, unitID string, stay entity.Stay, quantity int) error
	ReleaseRange(ctx context.Context, unitID string, stay entity.Stay, quantity int) error
	CreateHold(ctx context.Context, hold *entity.Hold) error
	GetHoldWithLock(ctx context.Context, id string) (*entity.Hold, error)
	UpdateHoldStatus(ctx context.Context, id string, status entity.HoldStatus) error

	// Calendar operations
	GetSlots(ctx context.Context, unitID string, from, to entity.Date) ([]*entity.InventorySlot, error)
	UpsertSlots(ctx context.Context, update entity.CapacityUpdate) error
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	GetByGatewayTxnID(ctx context.Context, txnID string) (*entity.Payment, error)
	GetByBookingID(ctx context.Context, bookingID string) ([]*entity.Payment, error)
	Update(ctx context.Context, payment *entity.Payment) error

	// Locking operations for concurrency control
	GetByGatewayTxnIDWithLock(ctx context.Context, txnID string) (*entity.Payment, error)
	GetByBookingIDWithLock(ctx context.Context, bookingID string) ([]*entity.Payment, error)
}

type CouponRepository interface {
	GetByCode(ctx context.Context, code string) (*entity.Coupon, error)
	GetByCodeWithLock(ctx context.Context, code string) (*entity.Coupon, error)
	CountUserUsages(ctx context.Context, couponID, userID string) (int, error)
	RecordUsage(ctx context.Context, usage *entity.CouponUsage) error
	IncrementUsage(ctx context.Context, couponID string) error
}

type PriceRuleRepository interface {
	GetActiveByUnitID(ctx context.Context, unitID string) ([]*entity.PriceRule, error)
}

// UnitRepository is the read-only catalog lookup.
type UnitRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Unit, error)
}

// UserRepository is the read-only user directory lookup.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
}

// Repositories groups every repository bound to one connection or transaction.
type Repositories interface {
	Bookings() BookingRepository
	Inventory() InventoryRepository
	Payments() PaymentRepository
	Coupons() CouponRepository
	PriceRules() PriceRuleRepository
	Units() UnitRepository
	Users() UserRepository
}

// Store hands out repositories outside a transaction and runs fn inside one.
// fn's error rolls the transaction back.
type Store interface {
	Repositories
	WithTx(ctx context.Context, fn func(repos Repositories) error) error
}
