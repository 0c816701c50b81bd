package service

import (
	"context"
	"fmt"
	"math"

	"github.com/sunilkarki98/staysewa-sub001/config"
	repository "github.com/sunilkarki98/staysewa-sub001/internal/database/postgres"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
)

type pricingService struct {
	store repository.Store
	cfg   config.BookingConfig
}

func NewPricingService(store repository.Store, cfg config.BookingConfig) PricingService {
	return &pricingService{store: store, cfg: cfg}
}

// ComputePrice is read-only and deterministic for the same catalog state.
func (s *pricingService) ComputePrice(ctx context.Context, unitID string, stay entity.Stay, guestCount int) (*entity.Quote, error) {
	if err := stay.Validate(); err != nil {
		return nil, err
	}
	unit, err := s.store.Units().GetByID(ctx, unitID)
	if err != nil {
		return nil, err
	}
	return quoteStay(ctx, s.store, unit, stay, guestCount, s.cfg)
}

// quoteStay prices stay against repos, which may be bound to a transaction.
func quoteStay(ctx context.Context, repos repository.Repositories, unit *entity.Unit, stay entity.Stay, guestCount int, cfg config.BookingConfig) (*entity.Quote, error) {
	if !unit.Active {
		return nil, fmt.Errorf("%w: unit %s is inactive", entity.ErrUnitNotFound, unit.ID)
	}
	if guestCount < 1 || (unit.MaxOccupancy > 0 && guestCount > unit.MaxOccupancy) {
		return nil, fmt.Errorf("%w: unit %s takes at most %d guests", entity.ErrValidation, unit.ID, unit.MaxOccupancy)
	}

	slots, err := repos.Inventory().GetSlots(ctx, unit.ID, stay.CheckIn, stay.CheckOut)
	if err != nil {
		return nil, fmt.Errorf("failed to load inventory: %w", err)
	}
	rules, err := repos.PriceRules().GetActiveByUnitID(ctx, unit.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load price rules: %w", err)
	}

	bySlotDate := make(map[string]*entity.InventorySlot, len(slots))
	for _, slot := range slots {
		bySlotDate[slot.Date.String()] = slot
	}

	nights := stay.Nights()
	quote := &entity.Quote{
		UnitID:    unit.ID,
		CheckIn:   stay.CheckIn,
		CheckOut:  stay.CheckOut,
		BasePrice: unit.BasePrice,
		Currency:  currencyOf(unit, cfg),
		MinNights: 1,
	}

	for _, night := range stay.Dates() {
		base := unit.BasePrice
		if slot, ok := bySlotDate[night.String()]; ok {
			if slot.PriceOverride != nil {
				base = *slot.PriceOverride
			}
			if slot.MinNights > quote.MinNights {
				quote.MinNights = slot.MinNights
			}
		}

		np := entity.NightPrice{Date: night, BasePrice: base, Price: base}
		if rule := bestRule(rules, night, nights); rule != nil {
			np.Price = adjust(base, rule)
			np.RuleID = rule.ID
		}
		if np.Price < 0 {
			np.Price = 0
		}
		quote.Nights = append(quote.Nights, np)
		quote.Subtotal += np.Price
	}

	quote.Taxes = applyRate(quote.Subtotal, cfg.TaxRate)
	quote.ServiceFee = applyRate(quote.Subtotal, cfg.ServiceFeeRate)
	quote.Total = quote.Subtotal + quote.Taxes + quote.ServiceFee
	return quote, nil
}

// bestRule picks the covering rule with the highest priority. Ties go to the
// most recently created rule, then to the greatest id.
func bestRule(rules []*entity.PriceRule, night entity.Date, nights int) *entity.PriceRule {
	var best *entity.PriceRule
	for _, r := range rules {
		if !r.Active || !r.Covers(night) || (r.MinNights > 0 && nights < r.MinNights) {
			continue
		}
		if best == nil || outranks(r, best) {
			best = r
		}
	}
	return best
}

func outranks(a, b *entity.PriceRule) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func adjust(base int64, rule *entity.PriceRule) int64 {
	switch rule.AdjustmentType {
	case entity.AdjustmentPercentage:
		return base + int64(math.Round(float64(base)*rule.Value/100))
	case entity.AdjustmentFixed:
		return base + int64(math.Round(rule.Value))
	}
	return base
}

// applyRate rounds half away from zero.
func applyRate(amount int64, rate float64) int64 {
	return int64(math.Round(float64(amount) * rate))
}

func currencyOf(unit *entity.Unit, cfg config.BookingConfig) string {
	if unit.Currency != "" {
		return unit.Currency
	}
	return cfg.Currency
}
