package entity

import (
	"errors"
	"fmt"
)

var (
	// General errors
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden operation")
	ErrInternal   = errors.New("internal error")

	// Stay and inventory errors
	ErrInvalidDateRange      = fmt.Errorf("%w: invalid date range", ErrValidation)
	ErrUnitNotFound          = fmt.Errorf("unit %w", ErrNotFound)
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrHoldNotFound          = fmt.Errorf("hold %w", ErrNotFound)

	// Booking errors
	ErrBookingNotFound   = fmt.Errorf("booking %w", ErrNotFound)
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrIllegalPairing    = errors.New("illegal status and payment status pairing")

	// Payment errors
	ErrPaymentNotFound  = fmt.Errorf("payment %w", ErrNotFound)
	ErrDuplicatePayment = errors.New("payment with this gateway transaction id already exists")
	ErrAmountMismatch   = errors.New("paid amount does not match payment amount")
	ErrGateway          = errors.New("payment gateway error")

	// Coupon errors
	ErrCouponInvalid        = errors.New("coupon invalid")
	ErrCouponAlreadyApplied = fmt.Errorf("%w: a coupon is already applied to this booking", ErrCouponInvalid)

	// User errors
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)
)
