package entity

import "time"

// Unit is a bookable room, bed or whole property as seen in the catalog.
type Unit struct {
	ID              string    `json:"id" db:"id"`
	PropertyID      string    `json:"property_id" db:"property_id"`
	OwnerID         string    `json:"owner_id" db:"owner_id"`
	Name            string    `json:"name" db:"name"`
	PropertyName    string    `json:"property_name" db:"property_name"`
	PropertyAddress string    `json:"property_address" db:"property_address"`
	BasePrice       int64     `json:"base_price" db:"base_price"`
	Currency        string    `json:"currency" db:"currency"`
	MaxOccupancy    int       `json:"max_occupancy" db:"max_occupancy"`
	Active          bool      `json:"active" db:"active"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

type AdjustmentType string

const (
	AdjustmentFixed      AdjustmentType = "fixed"
	AdjustmentPercentage AdjustmentType = "percentage"
)

// PriceRule adjusts the nightly base price for nights it covers. A rule
// covers a night when the night falls in [StartDate, EndDate] or its weekday
// is listed in Weekdays; a rule with neither covers nothing.
type PriceRule struct {
	ID             string         `json:"id" db:"id"`
	UnitID         string         `json:"unit_id" db:"unit_id"`
	Name           string         `json:"name" db:"name"`
	StartDate      *Date          `json:"start_date,omitempty" db:"start_date"`
	EndDate        *Date          `json:"end_date,omitempty" db:"end_date"`
	Weekdays       []time.Weekday `json:"weekdays,omitempty" db:"weekdays"`
	AdjustmentType AdjustmentType `json:"adjustment_type" db:"adjustment_type"`
	Value          float64        `json:"value" db:"value"`
	Priority       int            `json:"priority" db:"priority"`
	MinNights      int            `json:"min_nights" db:"min_nights"`
	Active         bool           `json:"active" db:"active"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

func (r *PriceRule) Covers(night Date) bool {
	if r.StartDate != nil || r.EndDate != nil {
		if r.StartDate != nil && night.Before(*r.StartDate) {
			return false
		}
		if r.EndDate != nil && night.After(*r.EndDate) {
			return false
		}
		if len(r.Weekdays) == 0 {
			return true
		}
	}
	for _, wd := range r.Weekdays {
		if night.Weekday() == wd {
			return true
		}
	}
	return false
}

type NightPrice struct {
	Date      Date   `json:"date"`
	BasePrice int64  `json:"base_price"`
	Price     int64  `json:"price"`
	RuleID    string `json:"rule_id,omitempty"`
}

// Quote is the price of a stay before discounts.
type Quote struct {
	UnitID     string       `json:"unit_id"`
	CheckIn    Date         `json:"check_in"`
	CheckOut   Date         `json:"check_out"`
	Nights     []NightPrice `json:"nights"`
	BasePrice  int64        `json:"base_price"`
	Subtotal   int64        `json:"subtotal"`
	Taxes      int64        `json:"taxes"`
	ServiceFee int64        `json:"service_fee"`
	Total      int64        `json:"total"`
	Currency   string       `json:"currency"`
	MinNights  int          `json:"min_nights"`
}
