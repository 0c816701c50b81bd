package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
)

type inventoryRepository struct {
	db querier
}

func NewInventoryRepository(db *sql.DB) InventoryRepository {
	return &inventoryRepository{db: db}
}

// ReserveRange locks every slot of the stay in date order, checks that each
// has quantity units left and decrements them in one statement. A missing or
// short slot fails the whole range before anything is written.
func (r *inventoryRepository) ReserveRange(ctx context.Context, unitID string, stay entity.Stay, quantity int) error {
	lockQuery := `
		SELECT slot_date, available_count, status
		FROM inventory_slots
		WHERE unit_id = $1 AND slot_date >= $2 AND slot_date < $3
		ORDER BY slot_date
		FOR UPDATE`

	rows, err := r.db.QueryContext(ctx, lockQuery, unitID, stay.CheckIn, stay.CheckOut)
	if err != nil {
		return fmt.Errorf("failed to lock inventory slots: %w", err)
	}

	locked := 0
	short := ""
	for rows.Next() {
		var slot entity.InventorySlot
		if err := rows.Scan(&slot.Date, &slot.AvailableCount, &slot.Status); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan inventory slot: %w", err)
		}
		locked++
		if !slot.Sellable(quantity) && short == "" {
			short = slot.Date.String()
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating inventory slots: %w", err)
	}
	rows.Close()

	if locked != stay.Nights() {
		return fmt.Errorf("%w: %d of %d nights have inventory", entity.ErrInsufficientInventory, locked, stay.Nights())
	}
	if short != "" {
		return fmt.Errorf("%w: %s is sold out", entity.ErrInsufficientInventory, short)
	}

	updateQuery := `
		UPDATE inventory_slots
		SET available_count = available_count - $4,
			status = CASE WHEN available_count - $4 = 0 THEN 'booked' ELSE status END,
			updated_at = NOW()
		WHERE unit_id = $1 AND slot_date >= $2 AND slot_date < $3
			AND status <> 'blocked' AND available_count >= $4`

	result, err := r.db.ExecContext(ctx, updateQuery, unitID, stay.CheckIn, stay.CheckOut, quantity)
	if err != nil {
		return fmt.Errorf("failed to decrement inventory: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if int(affected) != stay.Nights() {
		return fmt.Errorf("%w: only %d of %d nights reserved", entity.ErrInsufficientInventory, affected, stay.Nights())
	}
	return nil
}

// ReleaseRange gives quantity units back to every slot of the stay.
func (r *inventoryRepository) ReleaseRange(ctx context.Context, unitID string, stay entity.Stay, quantity int) error {
	query := `
		UPDATE inventory_slots
		SET available_count = available_count + $4,
			status = CASE WHEN status = 'booked' THEN 'available' ELSE status END,
			updated_at = NOW()
		WHERE unit_id = $1 AND slot_date >= $2 AND slot_date < $3`

	if _, err := r.db.ExecContext(ctx, query, unitID, stay.CheckIn, stay.CheckOut, quantity); err != nil {
		return fmt.Errorf("failed to release inventory: %w", err)
	}
	return nil
}

func (r *inventoryRepository) CreateHold(ctx context.Context, hold *entity.Hold) error {
	query := `
		INSERT INTO inventory_holds (id, unit_id, check_in, check_out, quantity, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		hold.ID, hold.UnitID, hold.CheckIn, hold.CheckOut, hold.Quantity, hold.Status, hold.CreatedAt, hold.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create hold: %w", err)
	}
	return nil
}

func (r *inventoryRepository) GetHoldWithLock(ctx context.Context, id string) (*entity.Hold, error) {
	query := `
		SELECT id, unit_id, check_in, check_out, quantity, status, created_at, updated_at
		FROM inventory_holds
		WHERE id = $1
		FOR UPDATE`

	var hold entity.Hold
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&hold.ID, &hold.UnitID, &hold.CheckIn, &hold.CheckOut, &hold.Quantity, &hold.Status, &hold.CreatedAt, &hold.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrHoldNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hold: %w", err)
	}
	return &hold, nil
}

func (r *inventoryRepository) UpdateHoldStatus(ctx context.Context, id string, status entity.HoldStatus) error {
	query := `UPDATE inventory_holds SET status = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update hold status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return entity.ErrHoldNotFound
	}
	return nil
}

func (r *inventoryRepository) GetSlots(ctx context.Context, unitID string, from, to entity.Date) ([]*entity.InventorySlot, error) {
	query := `
		SELECT unit_id, slot_date, available_count, price_override, min_nights, status, updated_at
		FROM inventory_slots
		WHERE unit_id = $1 AND slot_date >= $2 AND slot_date < $3
		ORDER BY slot_date`

	rows, err := r.db.QueryContext(ctx, query, unitID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory slots: %w", err)
	}
	defer rows.Close()

	var slots []*entity.InventorySlot
	for rows.Next() {
		var slot entity.InventorySlot
		var override sql.NullInt64
		if err := rows.Scan(&slot.UnitID, &slot.Date, &slot.AvailableCount, &override,
			&slot.MinNights, &slot.Status, &slot.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan inventory slot: %w", err)
		}
		if override.Valid {
			slot.PriceOverride = &override.Int64
		}
		slots = append(slots, &slot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inventory slots: %w", err)
	}
	return slots, nil
}

// UpsertSlots sets capacity for [From, To). Units already held stay taken
// out of the new capacity; a capacity below them is rejected.
func (r *inventoryRepository) UpsertSlots(ctx context.Context, u entity.CapacityUpdate) error {
	query := `
		INSERT INTO inventory_slots (unit_id, slot_date, capacity, available_count, price_override, min_nights, status, updated_at)
		SELECT $1, d::date, $4, $4, $5, $6, $7, NOW()
		FROM generate_series($2::date, $3::date - INTERVAL '1 day', INTERVAL '1 day') AS d
		ON CONFLICT (unit_id, slot_date) DO UPDATE SET
			available_count = EXCLUDED.capacity - (inventory_slots.capacity - inventory_slots.available_count),
			capacity = EXCLUDED.capacity,
			price_override = EXCLUDED.price_override,
			min_nights = EXCLUDED.min_nights,
			status = EXCLUDED.status,
			updated_at = NOW()
		WHERE EXCLUDED.capacity >= inventory_slots.capacity - inventory_slots.available_count`

	var override sql.NullInt64
	if u.PriceOverride != nil {
		override = sql.NullInt64{Int64: *u.PriceOverride, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query, u.UnitID, u.From, u.To, u.AvailableCount, override, u.MinNights, u.Status)
	if err != nil {
		return fmt.Errorf("failed to upsert inventory slots: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	// Rows skipped by the WHERE clause hold more units than the new capacity.
	// The caller's transaction rolls the rest back.
	if nights := (entity.Stay{CheckIn: u.From, CheckOut: u.To}).Nights(); int(affected) != nights {
		return fmt.Errorf("%w: capacity %d is below units already held on %d of %d nights",
			entity.ErrValidation, u.AvailableCount, nights-int(affected), nights)
	}
	return nil
}
