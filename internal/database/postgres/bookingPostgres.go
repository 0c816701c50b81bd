package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
)

type bookingRepository struct {
	db querier
}

func NewBookingRepository(db *sql.DB) BookingRepository {
	return &bookingRepository{db: db}
}

const bookingColumns = `
	id, booking_number, user_id, unit_id, property_id, owner_id, hold_id, coupon_code,
	check_in, check_out, nights, guest_count,
	guest_name, guest_email, guest_phone, property_name, unit_name, property_address, base_amount, currency,
	status, payment_status,
	subtotal_amount, discount_amount, tax_amount, service_fee, total_amount,
	commission_amount, payout_amount, refund_amount,
	expires_at, confirmed_at, checked_in_at, completed_at, cancelled_at, cancellation_reason,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*entity.Booking, error) {
	var b entity.Booking
	err := row.Scan(
		&b.ID, &b.BookingNumber, &b.UserID, &b.UnitID, &b.PropertyID, &b.OwnerID, &b.HoldID, &b.CouponCode,
		&b.CheckIn, &b.CheckOut, &b.Nights, &b.GuestCount,
		&b.Guest.Name, &b.Guest.Email, &b.Guest.Phone, &b.PropertyName, &b.UnitName, &b.PropertyAddress, &b.BaseAmount, &b.Currency,
		&b.Status, &b.PaymentStatus,
		&b.SubtotalAmount, &b.DiscountAmount, &b.TaxAmount, &b.ServiceFee, &b.TotalAmount,
		&b.CommissionAmount, &b.PayoutAmount, &b.RefundAmount,
		&b.ExpiresAt, &b.ConfirmedAt, &b.CheckedInAt, &b.CompletedAt, &b.CancelledAt, &b.CancellationReason,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Create inserts a booking after checking its invariants
func (r *bookingRepository) Create(ctx context.Context, b *entity.Booking) error {
	if err := b.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34, $35, $36, $37, $38)`

	_, err := r.db.ExecContext(ctx, query,
		b.ID, b.BookingNumber, b.UserID, b.UnitID, b.PropertyID, b.OwnerID, b.HoldID, b.CouponCode,
		b.CheckIn, b.CheckOut, b.Nights, b.GuestCount,
		b.Guest.Name, b.Guest.Email, b.Guest.Phone, b.PropertyName, b.UnitName, b.PropertyAddress, b.BaseAmount, b.Currency,
		b.Status, b.PaymentStatus,
		b.SubtotalAmount, b.DiscountAmount, b.TaxAmount, b.ServiceFee, b.TotalAmount,
		b.CommissionAmount, b.PayoutAmount, b.RefundAmount,
		b.ExpiresAt, b.ConfirmedAt, b.CheckedInAt, b.CompletedAt, b.CancelledAt, b.CancellationReason,
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// GetByID retrieves a booking by its ID
func (r *bookingRepository) GetByID(ctx context.Context, id string) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// GetWithLock retrieves a booking and locks its row until the transaction ends
func (r *bookingRepository) GetWithLock(ctx context.Context, id string) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`

	booking, err := scanBooking(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking with lock: %w", err)
	}
	return booking, nil
}

// Update persists the mutable part of a booking. The snapshot is never rewritten.
func (r *bookingRepository) Update(ctx context.Context, b *entity.Booking) error {
	if err := b.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE bookings SET
			status = $2, payment_status = $3,
			total_amount = $4, commission_amount = $5, payout_amount = $6, refund_amount = $7,
			expires_at = $8, confirmed_at = $9, checked_in_at = $10, completed_at = $11, cancelled_at = $12,
			cancellation_reason = $13, updated_at = $14
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query,
		b.ID, b.Status, b.PaymentStatus,
		b.TotalAmount, b.CommissionAmount, b.PayoutAmount, b.RefundAmount,
		b.ExpiresAt, b.ConfirmedAt, b.CheckedInAt, b.CompletedAt, b.CancelledAt,
		b.CancellationReason, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return entity.ErrBookingNotFound
	}
	return nil
}

func (r *bookingRepository) GetByUserID(ctx context.Context, userID string) ([]*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, userID)
}

func (r *bookingRepository) GetByOwnerID(ctx context.Context, ownerID string) ([]*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE owner_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, ownerID)
}

func (r *bookingRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Booking, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*entity.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}
	return bookings, nil
}

// GetExpiredBookings returns reserved bookings whose hold ran out before the given time
func (r *bookingRepository) GetExpiredBookings(ctx context.Context, before time.Time, limit int) ([]*entity.BookingExpiration, error) {
	query := `
		SELECT id, expires_at, user_id, unit_id
		FROM bookings
		WHERE status = 'reserved' AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get expired bookings: %w", err)
	}
	defer rows.Close()

	var expirations []*entity.BookingExpiration
	for rows.Next() {
		var exp entity.BookingExpiration
		if err := rows.Scan(&exp.BookingID, &exp.ExpiresAt, &exp.UserID, &exp.UnitID); err != nil {
			return nil, fmt.Errorf("failed to scan expired booking: %w", err)
		}
		expirations = append(expirations, &exp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expired bookings: %w", err)
	}
	return expirations, nil
}
