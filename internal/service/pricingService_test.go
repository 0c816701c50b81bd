package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
)

func datePtr(d entity.Date) *entity.Date { return &d }

func TestComputePrice_BaseRate(t *testing.T) {
	f := newFixture(t)
	f.open(10, 20, 1)

	quote, err := f.pricing.ComputePrice(context.Background(), testUnitID, stay(12, 15), 2)

	require.NoError(t, err)
	assert.Len(t, quote.Nights, 3)
	assert.Equal(t, int64(3000), quote.Subtotal)
	assert.Equal(t, int64(0), quote.Taxes)
	assert.Equal(t, int64(3000), quote.Total)
	assert.Equal(t, "NPR", quote.Currency)
	for _, n := range quote.Nights {
		assert.Equal(t, int64(1000), n.Price)
		assert.Empty(t, n.RuleID)
	}
}

func TestComputePrice_TaxesAndServiceFee(t *testing.T) {
	cfg := testBookingConfig()
	cfg.TaxRate = 0.13
	cfg.ServiceFeeRate = 0.05
	f := newFixtureWithConfig(t, cfg)

	quote, err := f.pricing.ComputePrice(context.Background(), testUnitID, stay(12, 15), 1)

	require.NoError(t, err)
	assert.Equal(t, int64(3000), quote.Subtotal)
	assert.Equal(t, int64(390), quote.Taxes)
	assert.Equal(t, int64(150), quote.ServiceFee)
	assert.Equal(t, int64(3540), quote.Total)
}

func TestComputePrice_Rules(t *testing.T) {
	older := testNow.Add(-48 * time.Hour)
	newer := testNow.Add(-24 * time.Hour)

	tests := []struct {
		name       string
		rules      []*entity.PriceRule
		override   *int64
		stay       entity.Stay
		wantNights []int64
		wantRule   string
	}{
		{
			name: "weekend percentage",
			rules: []*entity.PriceRule{
				{ID: "weekend", Weekdays: []time.Weekday{time.Friday, time.Saturday}, AdjustmentType: entity.AdjustmentPercentage, Value: 20, Active: true},
			},
			stay:       stay(13, 16), // Thu, Fri, Sat
			wantNights: []int64{1000, 1200, 1200},
		},
		{
			name: "date range fixed",
			rules: []*entity.PriceRule{
				{ID: "festival", StartDate: datePtr(day(14)), EndDate: datePtr(day(14)), AdjustmentType: entity.AdjustmentFixed, Value: 500, Active: true},
			},
			stay:       stay(13, 16),
			wantNights: []int64{1000, 1500, 1000},
		},
		{
			name: "higher priority wins",
			rules: []*entity.PriceRule{
				{ID: "low", StartDate: datePtr(day(1)), EndDate: datePtr(day(31)), AdjustmentType: entity.AdjustmentFixed, Value: 100, Priority: 1, Active: true},
				{ID: "high", StartDate: datePtr(day(1)), EndDate: datePtr(day(31)), AdjustmentType: entity.AdjustmentFixed, Value: -200, Priority: 5, Active: true},
			},
			stay:       stay(12, 13),
			wantNights: []int64{800},
			wantRule:   "high",
		},
		{
			name: "tie goes to most recent",
			rules: []*entity.PriceRule{
				{ID: "b-newer", StartDate: datePtr(day(1)), AdjustmentType: entity.AdjustmentFixed, Value: 300, Priority: 2, CreatedAt: newer, Active: true},
				{ID: "a-older", StartDate: datePtr(day(1)), AdjustmentType: entity.AdjustmentFixed, Value: 100, Priority: 2, CreatedAt: older, Active: true},
			},
			stay:       stay(12, 13),
			wantNights: []int64{1300},
			wantRule:   "b-newer",
		},
		{
			name: "full tie goes to greatest id",
			rules: []*entity.PriceRule{
				{ID: "rule-b", StartDate: datePtr(day(1)), AdjustmentType: entity.AdjustmentFixed, Value: 200, Priority: 2, CreatedAt: older, Active: true},
				{ID: "rule-a", StartDate: datePtr(day(1)), AdjustmentType: entity.AdjustmentFixed, Value: 100, Priority: 2, CreatedAt: older, Active: true},
			},
			stay:       stay(12, 13),
			wantNights: []int64{1200},
			wantRule:   "rule-b",
		},
		{
			name: "long stay rule needs enough nights",
			rules: []*entity.PriceRule{
				{ID: "weekly", StartDate: datePtr(day(1)), AdjustmentType: entity.AdjustmentPercentage, Value: -10, MinNights: 7, Active: true},
			},
			stay:       stay(12, 14),
			wantNights: []int64{1000, 1000},
		},
		{
			name: "inactive rule ignored",
			rules: []*entity.PriceRule{
				{ID: "off", StartDate: datePtr(day(1)), AdjustmentType: entity.AdjustmentFixed, Value: 999, Active: false},
			},
			stay:       stay(12, 13),
			wantNights: []int64{1000},
		},
		{
			name:       "slot override replaces base price",
			override:   int64Ptr(1800),
			stay:       stay(12, 13),
			wantNights: []int64{1800},
		},
		{
			name: "rule applies on top of override",
			rules: []*entity.PriceRule{
				{ID: "weekday", Weekdays: []time.Weekday{time.Wednesday}, AdjustmentType: entity.AdjustmentPercentage, Value: 50, Active: true},
			},
			override:   int64Ptr(2000),
			stay:       stay(12, 13), // Wednesday
			wantNights: []int64{3000},
			wantRule:   "weekday",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			for _, r := range tt.rules {
				r.UnitID = testUnitID
				f.store.AddPriceRule(r)
			}
			require.NoError(t, f.inventory.SetCapacity(context.Background(), entity.CapacityUpdate{
				UnitID: testUnitID, From: day(10), To: day(20), AvailableCount: 1, PriceOverride: tt.override,
			}, adminActor))

			quote, err := f.pricing.ComputePrice(context.Background(), testUnitID, tt.stay, 1)
			require.NoError(t, err)

			var got []int64
			var sum int64
			for _, n := range quote.Nights {
				got = append(got, n.Price)
				sum += n.Price
			}
			assert.Equal(t, tt.wantNights, got)
			assert.Equal(t, sum, quote.Subtotal)
			if tt.wantRule != "" {
				assert.Equal(t, tt.wantRule, quote.Nights[0].RuleID)
			}
		})
	}
}

func TestComputePrice_DeterministicAcrossRuleOrder(t *testing.T) {
	rules := func() []*entity.PriceRule {
		return []*entity.PriceRule{
			{ID: "x", UnitID: testUnitID, StartDate: datePtr(day(1)), AdjustmentType: entity.AdjustmentFixed, Value: 10, Priority: 3, CreatedAt: testNow, Active: true},
			{ID: "y", UnitID: testUnitID, StartDate: datePtr(day(1)), AdjustmentType: entity.AdjustmentFixed, Value: 20, Priority: 3, CreatedAt: testNow, Active: true},
			{ID: "z", UnitID: testUnitID, Weekdays: []time.Weekday{time.Thursday}, AdjustmentType: entity.AdjustmentFixed, Value: 30, Priority: 3, CreatedAt: testNow, Active: true},
		}
	}

	forward := newFixture(t)
	for _, r := range rules() {
		forward.store.AddPriceRule(r)
	}
	backward := newFixture(t)
	rs := rules()
	for i := len(rs) - 1; i >= 0; i-- {
		backward.store.AddPriceRule(rs[i])
	}

	a, err := forward.pricing.ComputePrice(context.Background(), testUnitID, stay(12, 15), 1)
	require.NoError(t, err)
	b, err := backward.pricing.ComputePrice(context.Background(), testUnitID, stay(12, 15), 1)
	require.NoError(t, err)

	assert.Equal(t, a.Nights, b.Nights)
	assert.Equal(t, a.Total, b.Total)
	assert.Equal(t, "z", a.Nights[1].RuleID)
}

func TestComputePrice_MinNightsFromSlots(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.inventory.SetCapacity(context.Background(), entity.CapacityUpdate{
		UnitID: testUnitID, From: day(14), To: day(16), AvailableCount: 1, MinNights: 3,
	}, adminActor))

	quote, err := f.pricing.ComputePrice(context.Background(), testUnitID, stay(13, 15), 1)

	require.NoError(t, err)
	assert.Equal(t, 3, quote.MinNights)
}

func TestComputePrice_Errors(t *testing.T) {
	f := newFixture(t)
	f.store.AddUnit(&entity.Unit{ID: "retired", PropertyID: testPropertyID, OwnerID: testOwnerID, BasePrice: 1000, MaxOccupancy: 2})

	tests := []struct {
		name    string
		unitID  string
		stay    entity.Stay
		guests  int
		wantErr error
	}{
		{name: "empty range", unitID: testUnitID, stay: stay(12, 12), guests: 1, wantErr: entity.ErrInvalidDateRange},
		{name: "reversed range", unitID: testUnitID, stay: stay(15, 12), guests: 1, wantErr: entity.ErrInvalidDateRange},
		{name: "unknown unit", unitID: "missing", stay: stay(12, 13), guests: 1, wantErr: entity.ErrUnitNotFound},
		{name: "inactive unit", unitID: "retired", stay: stay(12, 13), guests: 1, wantErr: entity.ErrUnitNotFound},
		{name: "too many guests", unitID: testUnitID, stay: stay(12, 13), guests: 3, wantErr: entity.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.pricing.ComputePrice(context.Background(), tt.unitID, tt.stay, tt.guests)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func int64Ptr(v int64) *int64 { return &v }
