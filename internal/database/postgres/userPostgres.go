package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
)

type userRepository struct {
	db querier
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	query := `
		SELECT id, email, name, phone, role, telegram_id, created_at
		FROM users
		WHERE id = $1
	`

	var user entity.User
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Phone,
		&user.Role,
		&user.TelegramID,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

type unitRepository struct {
	db querier
}

func NewUnitRepository(db *sql.DB) UnitRepository {
	return &unitRepository{db: db}
}

func (r *unitRepository) GetByID(ctx context.Context, id string) (*entity.Unit, error) {
	query := `
		SELECT u.id, u.property_id, p.owner_id, u.name, p.name, p.address,
			u.base_price, u.currency, u.max_occupancy, u.active AND p.active, u.created_at
		FROM units u
		JOIN properties p ON p.id = u.property_id
		WHERE u.id = $1
	`

	var unit entity.Unit
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&unit.ID,
		&unit.PropertyID,
		&unit.OwnerID,
		&unit.Name,
		&unit.PropertyName,
		&unit.PropertyAddress,
		&unit.BasePrice,
		&unit.Currency,
		&unit.MaxOccupancy,
		&unit.Active,
		&unit.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrUnitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get unit: %w", err)
	}
	return &unit, nil
}
