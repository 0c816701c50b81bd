package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	repository "github.com/sunilkarki98/staysewa-sub001/internal/database/postgres"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
)

const maxCalendarDays = 366

type inventoryService struct {
	store repository.Store
	cache AvailabilityCache
	now   Clock
}

func NewInventoryService(store repository.Store, cache AvailabilityCache, clock Clock) InventoryService {
	return &inventoryService{store: store, cache: orNoopCache(cache), now: orSystemClock(clock)}
}

// PlaceHold takes quantity units on every night of stay or nothing at all.
func (s *inventoryService) PlaceHold(ctx context.Context, unitID string, stay entity.Stay, quantity int) (string, error) {
	var hold *entity.Hold
	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		var err error
		hold, err = placeHold(ctx, repos, unitID, stay, quantity, s.now())
		return err
	})
	if err != nil {
		return "", err
	}
	invalidateAvailability(ctx, s.cache, unitID)
	return hold.ID, nil
}

func (s *inventoryService) CommitHold(ctx context.Context, holdID string) error {
	return s.store.WithTx(ctx, func(repos repository.Repositories) error {
		return commitHold(ctx, repos, holdID)
	})
}

func (s *inventoryService) ReleaseHold(ctx context.Context, holdID string) error {
	var hold *entity.Hold
	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		var err error
		hold, err = releaseHold(ctx, repos, holdID)
		return err
	})
	if err != nil {
		return err
	}
	if hold != nil {
		invalidateAvailability(ctx, s.cache, hold.UnitID)
	}
	return nil
}

// GetAvailability serves from the cache when it can. Nights without
// inventory are reported as unavailable.
func (s *inventoryService) GetAvailability(ctx context.Context, unitID string, from, to entity.Date) ([]*entity.InventorySlot, error) {
	stay := entity.Stay{CheckIn: from, CheckOut: to}
	if err := stay.Validate(); err != nil {
		return nil, err
	}
	if stay.Nights() > maxCalendarDays {
		return nil, fmt.Errorf("%w: calendar range is limited to %d days", entity.ErrValidation, maxCalendarDays)
	}
	if _, err := s.store.Units().GetByID(ctx, unitID); err != nil {
		return nil, err
	}

	cached, version, found, err := s.cache.Get(ctx, unitID, from, to)
	if err != nil {
		logrus.WithError(err).WithField("unit_id", unitID).Warn("Availability cache read failed")
	}
	if found {
		return cached, nil
	}

	slots, err := s.store.Inventory().GetSlots(ctx, unitID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load inventory: %w", err)
	}
	calendar := fillCalendar(unitID, stay, slots)

	if err := s.cache.Set(ctx, unitID, version, from, to, calendar); err != nil {
		logrus.WithError(err).WithField("unit_id", unitID).Warn("Availability cache write failed")
	}
	return calendar, nil
}

// SetCapacity opens, adjusts or blocks nights. Capacity cannot drop below
// the units already held on a night.
func (s *inventoryService) SetCapacity(ctx context.Context, update entity.CapacityUpdate, actor entity.Actor) error {
	stay := entity.Stay{CheckIn: update.From, CheckOut: update.To}
	if err := stay.Validate(); err != nil {
		return err
	}
	if stay.Nights() > maxCalendarDays {
		return fmt.Errorf("%w: capacity range is limited to %d days", entity.ErrValidation, maxCalendarDays)
	}
	if update.AvailableCount < 0 {
		return fmt.Errorf("%w: capacity cannot be negative", entity.ErrValidation)
	}
	if update.PriceOverride != nil && *update.PriceOverride < 0 {
		return fmt.Errorf("%w: price override cannot be negative", entity.ErrValidation)
	}
	if update.Status == "" {
		update.Status = entity.SlotStatusAvailable
	}
	if update.Status != entity.SlotStatusAvailable && update.Status != entity.SlotStatusBlocked {
		return fmt.Errorf("%w: slot status must be available or blocked", entity.ErrValidation)
	}

	unit, err := s.store.Units().GetByID(ctx, update.UnitID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && !(actor.Role == entity.RoleOwner && actor.ID == unit.OwnerID) {
		return fmt.Errorf("%w: only the owner or an admin can change inventory", entity.ErrForbidden)
	}

	err = s.store.WithTx(ctx, func(repos repository.Repositories) error {
		return repos.Inventory().UpsertSlots(ctx, update)
	})
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"unit_id":  update.UnitID,
		"from":     update.From.String(),
		"to":       update.To.String(),
		"capacity": update.AvailableCount,
		"status":   update.Status,
	}).Info("Inventory capacity updated")
	invalidateAvailability(ctx, s.cache, update.UnitID)
	return nil
}

func fillCalendar(unitID string, stay entity.Stay, slots []*entity.InventorySlot) []*entity.InventorySlot {
	byDate := make(map[string]*entity.InventorySlot, len(slots))
	for _, slot := range slots {
		byDate[slot.Date.String()] = slot
	}
	calendar := make([]*entity.InventorySlot, 0, stay.Nights())
	for _, d := range stay.Dates() {
		if slot, ok := byDate[d.String()]; ok {
			calendar = append(calendar, slot)
			continue
		}
		calendar = append(calendar, &entity.InventorySlot{
			UnitID: unitID,
			Date:   d,
			Status: entity.SlotStatusBlocked,
		})
	}
	return calendar
}

// placeHold, commitHold and releaseHold run inside the caller's transaction.

func placeHold(ctx context.Context, repos repository.Repositories, unitID string, stay entity.Stay, quantity int, now time.Time) (*entity.Hold, error) {
	if err := stay.Validate(); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", entity.ErrValidation)
	}

	if err := repos.Inventory().ReserveRange(ctx, unitID, stay, quantity); err != nil {
		return nil, err
	}

	hold := &entity.Hold{
		ID:        uuid.NewString(),
		UnitID:    unitID,
		CheckIn:   stay.CheckIn,
		CheckOut:  stay.CheckOut,
		Quantity:  quantity,
		Status:    entity.HoldStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repos.Inventory().CreateHold(ctx, hold); err != nil {
		return nil, fmt.Errorf("failed to create hold: %w", err)
	}
	return hold, nil
}

// commitHold is idempotent. Committing a released hold is an error.
func commitHold(ctx context.Context, repos repository.Repositories, holdID string) error {
	hold, err := repos.Inventory().GetHoldWithLock(ctx, holdID)
	if err != nil {
		return err
	}
	switch hold.Status {
	case entity.HoldStatusCommitted:
		return nil
	case entity.HoldStatusReleased:
		return fmt.Errorf("%w: hold %s was already released", entity.ErrInvalidTransition, holdID)
	}
	return repos.Inventory().UpdateHoldStatus(ctx, holdID, entity.HoldStatusCommitted)
}

// releaseHold returns the hold's units to every night exactly once. A second
// call is a no-op and returns a nil hold.
func releaseHold(ctx context.Context, repos repository.Repositories, holdID string) (*entity.Hold, error) {
	hold, err := repos.Inventory().GetHoldWithLock(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if hold.Status == entity.HoldStatusReleased {
		return nil, nil
	}
	if err := repos.Inventory().ReleaseRange(ctx, hold.UnitID, hold.Stay(), hold.Quantity); err != nil {
		return nil, fmt.Errorf("failed to release inventory: %w", err)
	}
	if err := repos.Inventory().UpdateHoldStatus(ctx, holdID, entity.HoldStatusReleased); err != nil {
		return nil, err
	}
	return hold, nil
}

func invalidateAvailability(ctx context.Context, cache AvailabilityCache, unitID string) {
	if err := cache.Invalidate(ctx, unitID); err != nil && !errors.Is(err, context.Canceled) {
		logrus.WithError(err).WithField("unit_id", unitID).Warn("Availability cache invalidation failed")
	}
}
