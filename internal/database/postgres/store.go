package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

type repositories struct {
	q querier
}

func (r *repositories) Bookings() BookingRepository     { return &bookingRepository{db: r.q} }
func (r *repositories) Inventory() InventoryRepository { return &inventoryRepository{db: r.q} }
func (r *repositories) Payments() PaymentRepository     { return &paymentRepository{db: r.q} }
func (r *repositories) Coupons() CouponRepository       { return &couponRepository{db: r.q} }
func (r *repositories) PriceRules() PriceRuleRepository { return &priceRuleRepository{db: r.q} }
func (r *repositories) Units() UnitRepository           { return &unitRepository{db: r.q} }
func (r *repositories) Users() UserRepository           { return &userRepository{db: r.q} }

type postgresStore struct {
	repositories
	db *sql.DB
}

func NewStore(db *sql.DB) Store {
	return &postgresStore{repositories: repositories{q: db}, db: db}
}

// WithTx runs fn in a READ COMMITTED transaction. Row locks taken with
// FOR UPDATE inside fn serialize competing writers.
func (s *postgresStore) WithTx(ctx context.Context, fn func(repos Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&repositories{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
