package entity

import "time"

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Coupon values are percent for percentage coupons and minor units for fixed ones.
type Coupon struct {
	ID               string       `json:"id" db:"id"`
	Code             string       `json:"code" db:"code"`
	DiscountType     DiscountType `json:"discount_type" db:"discount_type"`
	DiscountValue    int64        `json:"discount_value" db:"discount_value"`
	MaxDiscount      int64        `json:"max_discount" db:"max_discount"`
	MinBookingAmount int64        `json:"min_booking_amount" db:"min_booking_amount"`
	ValidFrom        time.Time    `json:"valid_from" db:"valid_from"`
	ValidUntil       time.Time    `json:"valid_until" db:"valid_until"`
	UsageLimit       int          `json:"usage_limit" db:"usage_limit"`
	UsageCount       int          `json:"usage_count" db:"usage_count"`
	UserLimit        int          `json:"user_limit" db:"user_limit"`
	PropertyIDs      []string     `json:"property_ids,omitempty" db:"property_ids"`
	Active           bool         `json:"active" db:"active"`
	CreatedAt        time.Time    `json:"created_at" db:"created_at"`
}

func (c *Coupon) AppliesTo(propertyID string) bool {
	if len(c.PropertyIDs) == 0 {
		return true
	}
	for _, id := range c.PropertyIDs {
		if id == propertyID {
			return true
		}
	}
	return false
}

type CouponUsage struct {
	ID             string    `json:"id" db:"id"`
	CouponID       string    `json:"coupon_id" db:"coupon_id"`
	UserID         string    `json:"user_id" db:"user_id"`
	BookingID      string    `json:"booking_id" db:"booking_id"`
	DiscountAmount int64     `json:"discount_amount" db:"discount_amount"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
