package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	repository "github.com/sunilkarki98/staysewa-sub001/internal/database/postgres"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
)

type couponService struct {
	store repository.Store
	now   Clock
}

func NewCouponService(store repository.Store, clock Clock) CouponService {
	return &couponService{store: store, now: orSystemClock(clock)}
}

func (s *couponService) Apply(ctx context.Context, code string, bookingAmount int64, propertyID, userID string) (int64, error) {
	coupon, err := s.store.Coupons().GetByCode(ctx, normalizeCode(code))
	if err != nil {
		return 0, err
	}
	used, err := s.store.Coupons().CountUserUsages(ctx, coupon.ID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count coupon usages: %w", err)
	}
	return evaluateCoupon(coupon, bookingAmount, propertyID, used, s.now())
}

// lockCoupon evaluates code under a row lock so the usage limit holds
// against concurrent redemptions.
func lockCoupon(ctx context.Context, repos repository.Repositories, code string, amount int64, propertyID, userID string, now time.Time) (*entity.Coupon, int64, error) {
	coupon, err := repos.Coupons().GetByCodeWithLock(ctx, normalizeCode(code))
	if err != nil {
		return nil, 0, err
	}
	used, err := repos.Coupons().CountUserUsages(ctx, coupon.ID, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count coupon usages: %w", err)
	}
	discount, err := evaluateCoupon(coupon, amount, propertyID, used, now)
	if err != nil {
		return nil, 0, err
	}
	return coupon, discount, nil
}

// redeemCoupon records the usage. A booking carries at most one coupon.
func redeemCoupon(ctx context.Context, repos repository.Repositories, coupon *entity.Coupon, userID, bookingID string, discount int64, now time.Time) error {
	usage := &entity.CouponUsage{
		ID:             uuid.NewString(),
		CouponID:       coupon.ID,
		UserID:         userID,
		BookingID:      bookingID,
		DiscountAmount: discount,
		CreatedAt:      now,
	}
	if err := repos.Coupons().RecordUsage(ctx, usage); err != nil {
		return err
	}
	return repos.Coupons().IncrementUsage(ctx, coupon.ID)
}

func evaluateCoupon(c *entity.Coupon, amount int64, propertyID string, userUsages int, now time.Time) (int64, error) {
	switch {
	case !c.Active:
		return 0, fmt.Errorf("%w: coupon is not active", entity.ErrCouponInvalid)
	case !c.ValidFrom.IsZero() && now.Before(c.ValidFrom):
		return 0, fmt.Errorf("%w: coupon is not valid yet", entity.ErrCouponInvalid)
	case !c.ValidUntil.IsZero() && now.After(c.ValidUntil):
		return 0, fmt.Errorf("%w: coupon has expired", entity.ErrCouponInvalid)
	case c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit:
		return 0, fmt.Errorf("%w: coupon usage limit reached", entity.ErrCouponInvalid)
	case c.UserLimit > 0 && userUsages >= c.UserLimit:
		return 0, fmt.Errorf("%w: coupon already used the maximum number of times", entity.ErrCouponInvalid)
	case amount < c.MinBookingAmount:
		return 0, fmt.Errorf("%w: booking amount below minimum of %d", entity.ErrCouponInvalid, c.MinBookingAmount)
	case !c.AppliesTo(propertyID):
		return 0, fmt.Errorf("%w: coupon does not apply to this property", entity.ErrCouponInvalid)
	}

	var discount int64
	switch c.DiscountType {
	case entity.DiscountPercentage:
		discount = int64(math.Round(float64(amount) * float64(c.DiscountValue) / 100))
		if c.MaxDiscount > 0 && discount > c.MaxDiscount {
			discount = c.MaxDiscount
		}
	case entity.DiscountFixed:
		discount = c.DiscountValue
	default:
		return 0, fmt.Errorf("%w: unknown discount type %q", entity.ErrCouponInvalid, c.DiscountType)
	}

	if discount > amount {
		discount = amount
	}
	if discount < 0 {
		discount = 0
	}
	return discount, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
