package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
)

type couponRepository struct {
	db querier
}

func NewCouponRepository(db *sql.DB) CouponRepository {
	return &couponRepository{db: db}
}

const couponColumns = `
	id, code, discount_type, discount_value, max_discount, min_booking_amount, valid_from, valid_until,
	usage_limit, usage_count, user_limit, property_ids, active, created_at`

func (r *couponRepository) GetByCode(ctx context.Context, code string) (*entity.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`
	return r.get(ctx, query, code)
}

// GetByCodeWithLock keeps concurrent redemptions of one coupon from overrunning its limits
func (r *couponRepository) GetByCodeWithLock(ctx context.Context, code string) (*entity.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1 FOR UPDATE`
	return r.get(ctx, query, code)
}

func (r *couponRepository) get(ctx context.Context, query string, code string) (*entity.Coupon, error) {
	var c entity.Coupon
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&c.ID, &c.Code, &c.DiscountType, &c.DiscountValue, &c.MaxDiscount, &c.MinBookingAmount,
		&c.ValidFrom, &c.ValidUntil, &c.UsageLimit, &c.UsageCount, &c.UserLimit,
		pq.Array(&c.PropertyIDs), &c.Active, &c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: code %q does not exist", entity.ErrCouponInvalid, code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	return &c, nil
}

func (r *couponRepository) CountUserUsages(ctx context.Context, couponID, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`

	var count int
	if err := r.db.QueryRowContext(ctx, query, couponID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count coupon usages: %w", err)
	}
	return count, nil
}

// RecordUsage relies on the unique booking_id constraint for one coupon per booking
func (r *couponRepository) RecordUsage(ctx context.Context, u *entity.CouponUsage) error {
	query := `
		INSERT INTO coupon_usages (id, coupon_id, user_id, booking_id, discount_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.ExecContext(ctx, query, u.ID, u.CouponID, u.UserID, u.BookingID, u.DiscountAmount, u.CreatedAt)
	if isUniqueViolation(err) {
		return entity.ErrCouponAlreadyApplied
	}
	if err != nil {
		return fmt.Errorf("failed to record coupon usage: %w", err)
	}
	return nil
}

func (r *couponRepository) IncrementUsage(ctx context.Context, couponID string) error {
	query := `UPDATE coupons SET usage_count = usage_count + 1 WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, couponID); err != nil {
		return fmt.Errorf("failed to increment coupon usage: %w", err)
	}
	return nil
}
