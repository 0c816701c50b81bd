package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
)

type priceRuleRepository struct {
	db querier
}

func NewPriceRuleRepository(db *sql.DB) PriceRuleRepository {
	return &priceRuleRepository{db: db}
}

func (r *priceRuleRepository) GetActiveByUnitID(ctx context.Context, unitID string) ([]*entity.PriceRule, error) {
	query := `
		SELECT id, unit_id, name, start_date, end_date, weekdays, adjustment_type, value,
			priority, min_nights, active, created_at
		FROM price_rules
		WHERE unit_id = $1 AND active = TRUE
		ORDER BY priority DESC, created_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to get price rules: %w", err)
	}
	defer rows.Close()

	var rules []*entity.PriceRule
	for rows.Next() {
		var rule entity.PriceRule
		var start, end sql.NullTime
		var weekdays []int64
		if err := rows.Scan(&rule.ID, &rule.UnitID, &rule.Name, &start, &end, pq.Array(&weekdays),
			&rule.AdjustmentType, &rule.Value, &rule.Priority, &rule.MinNights, &rule.Active, &rule.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price rule: %w", err)
		}
		if start.Valid {
			d := entity.DateOf(start.Time)
			rule.StartDate = &d
		}
		if end.Valid {
			d := entity.DateOf(end.Time)
			rule.EndDate = &d
		}
		for _, wd := range weekdays {
			rule.Weekdays = append(rule.Weekdays, time.Weekday(wd))
		}
		rules = append(rules, &rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price rules: %w", err)
	}
	return rules, nil
}
