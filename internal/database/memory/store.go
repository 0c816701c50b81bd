// Package memory is a process-local Store used for local runs and tests.
// Every transaction holds one mutex, so transactions are serializable and a
// failed transaction leaves no trace.
package memory

import (
	"context"
	"sync"

	repository "github.com/sunilkarki98/staysewa-sub001/internal/database/postgres"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
)

type slotKey struct {
	unitID string
	date   string
}

type state struct {
	units    map[string]*entity.Unit
	users    map[string]*entity.User
	rules    map[string][]*entity.PriceRule
	slots    map[slotKey]*entity.InventorySlot
	capacity map[slotKey]int
	holds    map[string]*entity.Hold
	bookings map[string]*entity.Booking
	payments map[string]*entity.Payment // by gateway txn id
	coupons  map[string]*entity.Coupon  // by code
	usages   map[string]*entity.CouponUsage
}

func newState() *state {
	return &state{
		units:    make(map[string]*entity.Unit),
		users:    make(map[string]*entity.User),
		rules:    make(map[string][]*entity.PriceRule),
		slots:    make(map[slotKey]*entity.InventorySlot),
		capacity: make(map[slotKey]int),
		holds:    make(map[string]*entity.Hold),
		bookings: make(map[string]*entity.Booking),
		payments: make(map[string]*entity.Payment),
		coupons:  make(map[string]*entity.Coupon),
		usages:   make(map[string]*entity.CouponUsage),
	}
}

// clone copies every mutable record so a rolled back transaction cannot leak writes.
// Catalog data is shared because nothing writes it inside a transaction.
func (s *state) clone() *state {
	c := newState()
	c.units = s.units
	c.users = s.users
	c.rules = s.rules
	for k, v := range s.slots {
		slot := *v
		c.slots[k] = &slot
	}
	for k, v := range s.capacity {
		c.capacity[k] = v
	}
	for k, v := range s.holds {
		hold := *v
		c.holds[k] = &hold
	}
	for k, v := range s.bookings {
		booking := *v
		c.bookings[k] = &booking
	}
	for k, v := range s.payments {
		payment := *v
		c.payments[k] = &payment
	}
	for k, v := range s.coupons {
		coupon := *v
		c.coupons[k] = &coupon
	}
	for k, v := range s.usages {
		usage := *v
		c.usages[k] = &usage
	}
	return c
}

type Store struct {
	mu    sync.Mutex
	state *state
}

func NewStore() *Store {
	return &Store{state: newState()}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) WithTx(ctx context.Context, fn func(repos repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	working := s.state.clone()
	if err := fn(&repos{tx: working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

func (s *Store) auto() *repos { return &repos{store: s} }

func (s *Store) Bookings() repository.BookingRepository     { return s.auto().Bookings() }
func (s *Store) Inventory() repository.InventoryRepository { return s.auto().Inventory() }
func (s *Store) Payments() repository.PaymentRepository     { return s.auto().Payments() }
func (s *Store) Coupons() repository.CouponRepository       { return s.auto().Coupons() }
func (s *Store) PriceRules() repository.PriceRuleRepository { return s.auto().PriceRules() }
func (s *Store) Units() repository.UnitRepository           { return s.auto().Units() }
func (s *Store) Users() repository.UserRepository           { return s.auto().Users() }

// repos is bound either to a transaction's working state or, outside a
// transaction, to the store itself with one lock per call.
type repos struct {
	store *Store
	tx    *state
}

func (r *repos) acquire() (*state, func()) {
	if r.tx != nil {
		return r.tx, func() {}
	}
	r.store.mu.Lock()
	return r.store.state, r.store.mu.Unlock
}

func (r *repos) Bookings() repository.BookingRepository     { return &bookingRepo{r} }
func (r *repos) Inventory() repository.InventoryRepository { return &inventoryRepo{r} }
func (r *repos) Payments() repository.PaymentRepository     { return &paymentRepo{r} }
func (r *repos) Coupons() repository.CouponRepository       { return &couponRepo{r} }
func (r *repos) PriceRules() repository.PriceRuleRepository { return &priceRuleRepo{r} }
func (r *repos) Units() repository.UnitRepository           { return &unitRepo{r} }
func (r *repos) Users() repository.UserRepository           { return &userRepo{r} }

// Seeding helpers for the catalog and directory, which this core only reads.

func (s *Store) AddUnit(u *entity.Unit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *u
	s.state.units[u.ID] = &c
}

func (s *Store) AddUser(u *entity.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *u
	s.state.users[u.ID] = &c
}

func (s *Store) AddPriceRule(rule *entity.PriceRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *rule
	s.state.rules[rule.UnitID] = append(s.state.rules[rule.UnitID], &c)
}

func (s *Store) AddCoupon(c *entity.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.state.coupons[c.Code] = &cp
}
