package entity

import "time"

type SlotStatus string

const (
	SlotStatusAvailable SlotStatus = "available"
	SlotStatusBlocked   SlotStatus = "blocked"
	SlotStatusBooked    SlotStatus = "booked"
)

// InventorySlot is the sellable capacity of one unit on one night.
type InventorySlot struct {
	UnitID         string     `json:"unit_id" db:"unit_id"`
	Date           Date       `json:"date" db:"slot_date"`
	AvailableCount int        `json:"available_count" db:"available_count"`
	PriceOverride  *int64     `json:"price_override,omitempty" db:"price_override"`
	MinNights      int        `json:"min_nights" db:"min_nights"`
	Status         SlotStatus `json:"status" db:"status"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// Sellable reports whether qty units can be taken from the slot.
func (s *InventorySlot) Sellable(qty int) bool {
	return s.Status != SlotStatusBlocked && s.AvailableCount >= qty
}

type HoldStatus string

const (
	HoldStatusActive    HoldStatus = "active"
	HoldStatusCommitted HoldStatus = "committed"
	HoldStatusReleased  HoldStatus = "released"
)

// Hold is a claim on inventory for a stay. Counters are decremented when the
// hold is placed and incremented once when it is released.
type Hold struct {
	ID        string     `json:"id" db:"id"`
	UnitID    string     `json:"unit_id" db:"unit_id"`
	CheckIn   Date       `json:"check_in" db:"check_in"`
	CheckOut  Date       `json:"check_out" db:"check_out"`
	Quantity  int        `json:"quantity" db:"quantity"`
	Status    HoldStatus `json:"status" db:"status"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

func (h *Hold) Stay() Stay {
	return Stay{CheckIn: h.CheckIn, CheckOut: h.CheckOut}
}

// CapacityUpdate opens or adjusts inventory over a date range.
type CapacityUpdate struct {
	UnitID         string
	From           Date
	To             Date
	AvailableCount int
	PriceOverride  *int64
	MinNights      int
	Status         SlotStatus
}
