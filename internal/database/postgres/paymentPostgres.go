package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
)

type paymentRepository struct {
	db querier
}

func NewPaymentRepository(db *sql.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

const paymentColumns = `
	id, booking_id, user_id, amount, currency, method, gateway_txn_id, status, payment_url,
	gateway_response, failure_reason, created_at, updated_at, processed_at, failed_at, refunded_at`

func scanPayment(row rowScanner) (*entity.Payment, error) {
	var p entity.Payment
	var response []byte
	err := row.Scan(
		&p.ID, &p.BookingID, &p.UserID, &p.Amount, &p.Currency, &p.Method, &p.GatewayTxnID, &p.Status, &p.PaymentURL,
		&response, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt, &p.ProcessedAt, &p.FailedAt, &p.RefundedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(response) > 0 {
		p.GatewayResponse = response
	}
	return &p, nil
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// Create inserts a payment; a second payment for the same gateway transaction id is rejected
func (r *paymentRepository) Create(ctx context.Context, p *entity.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.BookingID, p.UserID, p.Amount, p.Currency, p.Method, p.GatewayTxnID, p.Status, p.PaymentURL,
		nullableJSON(p.GatewayResponse), p.FailureReason, p.CreatedAt, p.UpdatedAt, p.ProcessedAt, p.FailedAt, p.RefundedAt,
	)
	if isUniqueViolation(err) {
		return entity.ErrDuplicatePayment
	}
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetByGatewayTxnID(ctx context.Context, txnID string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE gateway_txn_id = $1`
	return r.get(ctx, query, txnID)
}

// GetByGatewayTxnIDWithLock serializes finalization attempts for one transaction id
func (r *paymentRepository) GetByGatewayTxnIDWithLock(ctx context.Context, txnID string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE gateway_txn_id = $1 FOR UPDATE`
	return r.get(ctx, query, txnID)
}

func (r *paymentRepository) get(ctx context.Context, query string, args ...interface{}) (*entity.Payment, error) {
	payment, err := scanPayment(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return payment, nil
}

func (r *paymentRepository) GetByBookingID(ctx context.Context, bookingID string) ([]*entity.Payment, error) {
	return r.list(ctx, `SELECT `+paymentColumns+` FROM payments WHERE booking_id = $1 ORDER BY created_at`, bookingID)
}

// GetByBookingIDWithLock locks every payment of a booking in id order.
// Callers take these locks before the booking row, as finalize does.
func (r *paymentRepository) GetByBookingIDWithLock(ctx context.Context, bookingID string) ([]*entity.Payment, error) {
	return r.list(ctx, `SELECT `+paymentColumns+` FROM payments WHERE booking_id = $1 ORDER BY id FOR UPDATE`, bookingID)
}

func (r *paymentRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get payments: %w", err)
	}
	defer rows.Close()

	var payments []*entity.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, payment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return payments, nil
}

func (r *paymentRepository) Update(ctx context.Context, p *entity.Payment) error {
	query := `
		UPDATE payments SET
			status = $2, gateway_response = $3, failure_reason = $4, updated_at = $5,
			processed_at = $6, failed_at = $7, refunded_at = $8
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query,
		p.ID, p.Status, nullableJSON(p.GatewayResponse), p.FailureReason, p.UpdatedAt,
		p.ProcessedAt, p.FailedAt, p.RefundedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return entity.ErrPaymentNotFound
	}
	return nil
}
