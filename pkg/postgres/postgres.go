package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sunilkarki98/staysewa-sub001/config"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.WithField("host", cfg.Host).Info("Successfully connected to PostgreSQL")
	return db, nil
}

// Migrations is the schema, applied in order. Invariants that the store can
// express are enforced here with CHECK and UNIQUE constraints.
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email VARCHAR(255) UNIQUE NOT NULL,
		name VARCHAR(255) NOT NULL,
		phone VARCHAR(32) NOT NULL DEFAULT '',
		role VARCHAR(20) NOT NULL DEFAULT 'customer' CHECK (role IN ('customer', 'owner', 'admin')),
		telegram_id VARCHAR(100) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS properties (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES users(id),
		name VARCHAR(255) NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS units (
		id TEXT PRIMARY KEY,
		property_id TEXT NOT NULL REFERENCES properties(id),
		name VARCHAR(255) NOT NULL,
		base_price BIGINT NOT NULL CHECK (base_price >= 0),
		currency VARCHAR(3) NOT NULL DEFAULT 'NPR',
		max_occupancy INTEGER NOT NULL CHECK (max_occupancy > 0),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS inventory_slots (
		unit_id TEXT NOT NULL REFERENCES units(id),
		slot_date DATE NOT NULL,
		capacity INTEGER NOT NULL CHECK (capacity >= 0),
		available_count INTEGER NOT NULL CHECK (available_count >= 0),
		price_override BIGINT CHECK (price_override >= 0),
		min_nights INTEGER NOT NULL DEFAULT 1 CHECK (min_nights >= 1),
		status VARCHAR(20) NOT NULL DEFAULT 'available' CHECK (status IN ('available', 'blocked', 'booked')),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (unit_id, slot_date)
	)`,

	`CREATE TABLE IF NOT EXISTS inventory_holds (
		id TEXT PRIMARY KEY,
		unit_id TEXT NOT NULL REFERENCES units(id),
		check_in DATE NOT NULL,
		check_out DATE NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		status VARCHAR(20) NOT NULL CHECK (status IN ('active', 'committed', 'released')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (check_out > check_in)
	)`,

	`CREATE TABLE IF NOT EXISTS price_rules (
		id TEXT PRIMARY KEY,
		unit_id TEXT NOT NULL REFERENCES units(id),
		name VARCHAR(255) NOT NULL DEFAULT '',
		start_date DATE,
		end_date DATE,
		weekdays INTEGER[] NOT NULL DEFAULT '{}',
		adjustment_type VARCHAR(20) NOT NULL CHECK (adjustment_type IN ('fixed', 'percentage')),
		value DOUBLE PRECISION NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		min_nights INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		booking_number VARCHAR(32) UNIQUE NOT NULL,
		user_id TEXT NOT NULL,
		unit_id TEXT NOT NULL REFERENCES units(id),
		property_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		hold_id TEXT NOT NULL REFERENCES inventory_holds(id),
		coupon_code VARCHAR(64) NOT NULL DEFAULT '',
		check_in DATE NOT NULL,
		check_out DATE NOT NULL,
		nights INTEGER NOT NULL CHECK (nights >= 1),
		guest_count INTEGER NOT NULL CHECK (guest_count >= 1),
		guest_name VARCHAR(255) NOT NULL,
		guest_email VARCHAR(255) NOT NULL,
		guest_phone VARCHAR(32) NOT NULL DEFAULT '',
		property_name VARCHAR(255) NOT NULL,
		unit_name VARCHAR(255) NOT NULL,
		property_address TEXT NOT NULL DEFAULT '',
		base_amount BIGINT NOT NULL,
		currency VARCHAR(3) NOT NULL,
		status VARCHAR(20) NOT NULL,
		payment_status VARCHAR(20) NOT NULL,
		subtotal_amount BIGINT NOT NULL,
		discount_amount BIGINT NOT NULL DEFAULT 0,
		tax_amount BIGINT NOT NULL DEFAULT 0,
		service_fee BIGINT NOT NULL DEFAULT 0,
		total_amount BIGINT NOT NULL CHECK (total_amount > 0),
		commission_amount BIGINT NOT NULL DEFAULT 0,
		payout_amount BIGINT NOT NULL DEFAULT 0,
		refund_amount BIGINT NOT NULL DEFAULT 0,
		expires_at TIMESTAMPTZ,
		confirmed_at TIMESTAMPTZ,
		checked_in_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		cancelled_at TIMESTAMPTZ,
		cancellation_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (check_out > check_in),
		CHECK (nights = check_out - check_in),
		CHECK (status <> 'reserved' OR expires_at IS NOT NULL),
		CHECK (
			(status = 'initiated' AND payment_status IN ('pending', 'not_required')) OR
			(status = 'reserved' AND payment_status = 'pending') OR
			(status IN ('confirmed', 'checked_in', 'completed', 'no_show') AND payment_status IN ('success', 'not_required')) OR
			(status = 'cancelled' AND payment_status IN ('failed', 'success', 'refunded', 'not_required')) OR
			(status = 'expired' AND payment_status = 'failed')
		)
	)`,

	`CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		booking_id TEXT NOT NULL REFERENCES bookings(id),
		user_id TEXT NOT NULL,
		amount BIGINT NOT NULL CHECK (amount > 0),
		currency VARCHAR(3) NOT NULL,
		method VARCHAR(20) NOT NULL,
		gateway_txn_id VARCHAR(128) NOT NULL UNIQUE,
		status VARCHAR(20) NOT NULL CHECK (status IN ('initiated', 'completed', 'failed', 'refunded')),
		payment_url TEXT NOT NULL DEFAULT '',
		gateway_response JSONB,
		failure_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at TIMESTAMPTZ,
		failed_at TIMESTAMPTZ,
		refunded_at TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS coupons (
		id TEXT PRIMARY KEY,
		code VARCHAR(64) UNIQUE NOT NULL,
		discount_type VARCHAR(20) NOT NULL CHECK (discount_type IN ('percentage', 'fixed')),
		discount_value BIGINT NOT NULL CHECK (discount_value > 0),
		max_discount BIGINT NOT NULL DEFAULT 0,
		min_booking_amount BIGINT NOT NULL DEFAULT 0,
		valid_from TIMESTAMPTZ NOT NULL,
		valid_until TIMESTAMPTZ NOT NULL,
		usage_limit INTEGER NOT NULL DEFAULT 0,
		usage_count INTEGER NOT NULL DEFAULT 0 CHECK (usage_count >= 0),
		user_limit INTEGER NOT NULL DEFAULT 0,
		property_ids TEXT[] NOT NULL DEFAULT '{}',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS coupon_usages (
		id TEXT PRIMARY KEY,
		coupon_id TEXT NOT NULL REFERENCES coupons(id),
		user_id TEXT NOT NULL,
		booking_id TEXT NOT NULL UNIQUE REFERENCES bookings(id),
		discount_amount BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	// Indexes
	`CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_owner_id ON bookings(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_reserved_expiry ON bookings(expires_at) WHERE status = 'reserved'`,
	`CREATE INDEX IF NOT EXISTS idx_payments_booking_id ON payments(booking_id)`,
	`CREATE INDEX IF NOT EXISTS idx_coupon_usages_coupon_user ON coupon_usages(coupon_id, user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_price_rules_unit ON price_rules(unit_id) WHERE active`,
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	for i, migration := range Migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("failed to execute migration %d: %w", i, err)
		}
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}
