package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
)

func key(unitID string, d entity.Date) slotKey {
	return slotKey{unitID: unitID, date: d.String()}
}

type bookingRepo struct{ *repos }

func (r *bookingRepo) Create(ctx context.Context, b *entity.Booking) error {
	if err := b.Validate(); err != nil {
		return err
	}
	st, release := r.acquire()
	defer release()

	if _, ok := st.bookings[b.ID]; ok {
		return fmt.Errorf("booking %s already exists", b.ID)
	}
	c := *b
	st.bookings[b.ID] = &c
	return nil
}

func (r *bookingRepo) GetByID(ctx context.Context, id string) (*entity.Booking, error) {
	st, release := r.acquire()
	defer release()

	b, ok := st.bookings[id]
	if !ok {
		return nil, entity.ErrBookingNotFound
	}
	c := *b
	return &c, nil
}

func (r *bookingRepo) GetWithLock(ctx context.Context, id string) (*entity.Booking, error) {
	return r.GetByID(ctx, id)
}

func (r *bookingRepo) Update(ctx context.Context, b *entity.Booking) error {
	if err := b.Validate(); err != nil {
		return err
	}
	st, release := r.acquire()
	defer release()

	if _, ok := st.bookings[b.ID]; !ok {
		return entity.ErrBookingNotFound
	}
	c := *b
	st.bookings[b.ID] = &c
	return nil
}

func (r *bookingRepo) GetByUserID(ctx context.Context, userID string) ([]*entity.Booking, error) {
	return r.filter(func(b *entity.Booking) bool { return b.UserID == userID }), nil
}

func (r *bookingRepo) GetByOwnerID(ctx context.Context, ownerID string) ([]*entity.Booking, error) {
	return r.filter(func(b *entity.Booking) bool { return b.OwnerID == ownerID }), nil
}

func (r *bookingRepo) filter(match func(*entity.Booking) bool) []*entity.Booking {
	st, release := r.acquire()
	defer release()

	var out []*entity.Booking
	for _, b := range st.bookings {
		if match(b) {
			c := *b
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *bookingRepo) GetExpiredBookings(ctx context.Context, before time.Time, limit int) ([]*entity.BookingExpiration, error) {
	st, release := r.acquire()
	defer release()

	var out []*entity.BookingExpiration
	for _, b := range st.bookings {
		if b.Status == entity.BookingStatusReserved && b.ExpiresAt != nil && b.ExpiresAt.Before(before) {
			out = append(out, &entity.BookingExpiration{
				BookingID: b.ID, ExpiresAt: *b.ExpiresAt, UserID: b.UserID, UnitID: b.UnitID,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type inventoryRepo struct{ *repos }

func (r *inventoryRepo) ReserveRange(ctx context.Context, unitID string, stay entity.Stay, quantity int) error {
	st, release := r.acquire()
	defer release()

	for _, d := range stay.Dates() {
		slot, ok := st.slots[key(unitID, d)]
		if !ok {
			return fmt.Errorf("%w: no inventory on %s", entity.ErrInsufficientInventory, d)
		}
		if !slot.Sellable(quantity) {
			return fmt.Errorf("%w: %s is sold out", entity.ErrInsufficientInventory, d)
		}
	}
	for _, d := range stay.Dates() {
		slot := st.slots[key(unitID, d)]
		slot.AvailableCount -= quantity
		if slot.AvailableCount == 0 {
			slot.Status = entity.SlotStatusBooked
		}
	}
	return nil
}

func (r *inventoryRepo) ReleaseRange(ctx context.Context, unitID string, stay entity.Stay, quantity int) error {
	st, release := r.acquire()
	defer release()

	for _, d := range stay.Dates() {
		slot, ok := st.slots[key(unitID, d)]
		if !ok {
			continue
		}
		slot.AvailableCount += quantity
		if slot.Status == entity.SlotStatusBooked {
			slot.Status = entity.SlotStatusAvailable
		}
	}
	return nil
}

func (r *inventoryRepo) CreateHold(ctx context.Context, hold *entity.Hold) error {
	st, release := r.acquire()
	defer release()

	c := *hold
	st.holds[hold.ID] = &c
	return nil
}

func (r *inventoryRepo) GetHoldWithLock(ctx context.Context, id string) (*entity.Hold, error) {
	st, release := r.acquire()
	defer release()

	hold, ok := st.holds[id]
	if !ok {
		return nil, entity.ErrHoldNotFound
	}
	c := *hold
	return &c, nil
}

func (r *inventoryRepo) UpdateHoldStatus(ctx context.Context, id string, status entity.HoldStatus) error {
	st, release := r.acquire()
	defer release()

	hold, ok := st.holds[id]
	if !ok {
		return entity.ErrHoldNotFound
	}
	hold.Status = status
	hold.UpdatedAt = time.Now()
	return nil
}

func (r *inventoryRepo) GetSlots(ctx context.Context, unitID string, from, to entity.Date) ([]*entity.InventorySlot, error) {
	st, release := r.acquire()
	defer release()

	var out []*entity.InventorySlot
	for _, d := range (entity.Stay{CheckIn: from, CheckOut: to}).Dates() {
		if slot, ok := st.slots[key(unitID, d)]; ok {
			c := *slot
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *inventoryRepo) UpsertSlots(ctx context.Context, u entity.CapacityUpdate) error {
	st, release := r.acquire()
	defer release()

	dates := (entity.Stay{CheckIn: u.From, CheckOut: u.To}).Dates()
	taken := make([]int, len(dates))
	for i, d := range dates {
		k := key(u.UnitID, d)
		if slot, ok := st.slots[k]; ok {
			taken[i] = st.capacity[k] - slot.AvailableCount
		}
		if u.AvailableCount < taken[i] {
			return fmt.Errorf("%w: capacity %d is below %d units held on %s", entity.ErrValidation, u.AvailableCount, taken[i], d)
		}
	}

	for i, d := range dates {
		k := key(u.UnitID, d)
		st.capacity[k] = u.AvailableCount
		st.slots[k] = &entity.InventorySlot{
			UnitID:         u.UnitID,
			Date:           d,
			AvailableCount: u.AvailableCount - taken[i],
			PriceOverride:  u.PriceOverride,
			MinNights:      u.MinNights,
			Status:         u.Status,
			UpdatedAt:      time.Now(),
		}
	}
	return nil
}

type paymentRepo struct{ *repos }

func (r *paymentRepo) Create(ctx context.Context, p *entity.Payment) error {
	st, release := r.acquire()
	defer release()

	if _, ok := st.payments[p.GatewayTxnID]; ok {
		return entity.ErrDuplicatePayment
	}
	c := *p
	st.payments[p.GatewayTxnID] = &c
	return nil
}

func (r *paymentRepo) GetByGatewayTxnID(ctx context.Context, txnID string) (*entity.Payment, error) {
	st, release := r.acquire()
	defer release()

	p, ok := st.payments[txnID]
	if !ok {
		return nil, entity.ErrPaymentNotFound
	}
	c := *p
	return &c, nil
}

func (r *paymentRepo) GetByGatewayTxnIDWithLock(ctx context.Context, txnID string) (*entity.Payment, error) {
	return r.GetByGatewayTxnID(ctx, txnID)
}

func (r *paymentRepo) GetByBookingIDWithLock(ctx context.Context, bookingID string) ([]*entity.Payment, error) {
	return r.GetByBookingID(ctx, bookingID)
}

func (r *paymentRepo) GetByBookingID(ctx context.Context, bookingID string) ([]*entity.Payment, error) {
	st, release := r.acquire()
	defer release()

	var out []*entity.Payment
	for _, p := range st.payments {
		if p.BookingID == bookingID {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *paymentRepo) Update(ctx context.Context, p *entity.Payment) error {
	st, release := r.acquire()
	defer release()

	if _, ok := st.payments[p.GatewayTxnID]; !ok {
		return entity.ErrPaymentNotFound
	}
	c := *p
	st.payments[p.GatewayTxnID] = &c
	return nil
}

type couponRepo struct{ *repos }

func (r *couponRepo) GetByCode(ctx context.Context, code string) (*entity.Coupon, error) {
	st, release := r.acquire()
	defer release()

	c, ok := st.coupons[code]
	if !ok {
		return nil, fmt.Errorf("%w: code %q does not exist", entity.ErrCouponInvalid, code)
	}
	cp := *c
	return &cp, nil
}

func (r *couponRepo) GetByCodeWithLock(ctx context.Context, code string) (*entity.Coupon, error) {
	return r.GetByCode(ctx, code)
}

func (r *couponRepo) CountUserUsages(ctx context.Context, couponID, userID string) (int, error) {
	st, release := r.acquire()
	defer release()

	count := 0
	for _, u := range st.usages {
		if u.CouponID == couponID && u.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r *couponRepo) RecordUsage(ctx context.Context, u *entity.CouponUsage) error {
	st, release := r.acquire()
	defer release()

	if _, ok := st.usages[u.BookingID]; ok {
		return entity.ErrCouponAlreadyApplied
	}
	c := *u
	st.usages[u.BookingID] = &c
	return nil
}

func (r *couponRepo) IncrementUsage(ctx context.Context, couponID string) error {
	st, release := r.acquire()
	defer release()

	for _, c := range st.coupons {
		if c.ID == couponID {
			c.UsageCount++
			return nil
		}
	}
	return fmt.Errorf("%w: coupon %s", entity.ErrNotFound, couponID)
}

type priceRuleRepo struct{ *repos }

func (r *priceRuleRepo) GetActiveByUnitID(ctx context.Context, unitID string) ([]*entity.PriceRule, error) {
	st, release := r.acquire()
	defer release()

	var out []*entity.PriceRule
	for _, rule := range st.rules[unitID] {
		if rule.Active {
			c := *rule
			out = append(out, &c)
		}
	}
	return out, nil
}

type unitRepo struct{ *repos }

func (r *unitRepo) GetByID(ctx context.Context, id string) (*entity.Unit, error) {
	st, release := r.acquire()
	defer release()

	u, ok := st.units[id]
	if !ok {
		return nil, entity.ErrUnitNotFound
	}
	c := *u
	return &c, nil
}

type userRepo struct{ *repos }

func (r *userRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	st, release := r.acquire()
	defer release()

	u, ok := st.users[id]
	if !ok {
		return nil, entity.ErrUserNotFound
	}
	c := *u
	return &c, nil
}
