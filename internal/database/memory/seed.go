package memory

import (
	"context"
	"time"

	repository "github.com/sunilkarki98/staysewa-sub001/internal/database/postgres"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
)

// Demo catalog ids, stable so local clients can refer to them.
const (
	DemoOwnerID    = "owner-demo"
	DemoCustomerID = "customer-demo"
	DemoPropertyID = "property-demo"
	DemoUnitID     = "unit-demo"
)

// SeedDemo loads one property with one unit and opens its inventory for
// the given number of nights starting today.
func SeedDemo(ctx context.Context, s *Store, now time.Time, nights int) error {
	s.AddUser(&entity.User{ID: DemoOwnerID, Email: "owner@staysewa.local", Name: "Demo Owner", Role: entity.RoleOwner, CreatedAt: now})
	s.AddUser(&entity.User{ID: DemoCustomerID, Email: "guest@staysewa.local", Name: "Demo Guest", Role: entity.RoleCustomer, CreatedAt: now})
	s.AddUnit(&entity.Unit{
		ID:              DemoUnitID,
		PropertyID:      DemoPropertyID,
		OwnerID:         DemoOwnerID,
		Name:            "Deluxe Double",
		PropertyName:    "Lakeside Homestay",
		PropertyAddress: "Lakeside, Pokhara",
		BasePrice:       350000,
		Currency:        "NPR",
		MaxOccupancy:    2,
		Active:          true,
		CreatedAt:       now,
	})

	today := entity.DateOf(now)
	return s.WithTx(ctx, func(repos repository.Repositories) error {
		return repos.Inventory().UpsertSlots(ctx, entity.CapacityUpdate{
			UnitID:         DemoUnitID,
			From:           today,
			To:             today.AddDays(nights),
			AvailableCount: 3,
			MinNights:      1,
			Status:         entity.SlotStatusAvailable,
		})
	})
}
