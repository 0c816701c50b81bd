package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sunilkarki98/staysewa-sub001/config"
	"github.com/sunilkarki98/staysewa-sub001/internal/database/memory"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
	"github.com/sunilkarki98/staysewa-sub001/internal/service"
)

var start = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type reaperEnv struct {
	store     *memory.Store
	clock     *clock
	bookings  service.BookingService
	inventory service.InventoryService
}

func newReaperEnv(t *testing.T) *reaperEnv {
	t.Helper()
	env := &reaperEnv{store: memory.NewStore(), clock: &clock{now: start}}
	env.store.AddUser(&entity.User{ID: "guest-1", Role: entity.RoleCustomer})
	env.store.AddUnit(&entity.Unit{
		ID: "unit-1", PropertyID: "property-1", OwnerID: "owner-1",
		BasePrice: 1000, Currency: "NPR", MaxOccupancy: 2, Active: true,
	})

	cfg := config.BookingConfig{HoldWindow: 15 * time.Minute, MaxNights: 30, Currency: "NPR"}
	env.inventory = service.NewInventoryService(env.store, nil, env.clock.Now)
	env.bookings = service.NewBookingService(env.store, nil, nil, cfg, env.clock.Now)

	require.NoError(t, env.inventory.SetCapacity(context.Background(), entity.CapacityUpdate{
		UnitID: "unit-1", From: entity.NewDate(2025, time.March, 10), To: entity.NewDate(2025, time.March, 20), AvailableCount: 5,
	}, entity.Actor{ID: "admin", Role: entity.RoleAdmin}))
	return env
}

func (e *reaperEnv) book(t *testing.T, checkIn int) *entity.Booking {
	t.Helper()
	b, err := e.bookings.CreateBooking(context.Background(), &service.CreateBookingRequest{
		UserID:     "guest-1",
		UnitID:     "unit-1",
		CheckIn:    entity.NewDate(2025, time.March, checkIn),
		CheckOut:   entity.NewDate(2025, time.March, checkIn+2),
		GuestCount: 1,
		Guest:      entity.GuestInfo{Name: "Sita", Email: "sita@example.com"},
	})
	require.NoError(t, err)
	return b
}

func (e *reaperEnv) available(t *testing.T, night int) int {
	t.Helper()
	slots, err := e.store.Inventory().GetSlots(context.Background(), "unit-1",
		entity.NewDate(2025, time.March, night), entity.NewDate(2025, time.March, night+1))
	require.NoError(t, err)
	require.Len(t, slots, 1)
	return slots[0].AvailableCount
}

func TestSweep_ExpiresLapsedHolds(t *testing.T) {
	env := newReaperEnv(t)
	first := env.book(t, 12)
	second := env.book(t, 12)
	env.clock.advance(10 * time.Minute)
	fresh := env.book(t, 12)
	assert.Equal(t, 2, env.available(t, 12))

	reaper := NewExpiryReaper(env.bookings, time.Minute, 1, env.clock.Now)
	env.clock.advance(6 * time.Minute)

	result := reaper.Sweep(context.Background())

	assert.Equal(t, SweepResult{Expired: 2}, result)
	for _, id := range []string{first.ID, second.ID} {
		b, err := env.store.Bookings().GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, entity.BookingStatusExpired, b.Status)
		assert.Equal(t, entity.PaymentStatusFailed, b.PaymentStatus)
	}
	b, err := env.store.Bookings().GetByID(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusReserved, b.Status)
	assert.Equal(t, 4, env.available(t, 12))

	assert.Equal(t, SweepResult{}, reaper.Sweep(context.Background()), "nothing left to expire")
}

type scriptedBookings struct {
	service.BookingService
	due     []*entity.BookingExpiration
	results map[string]error
	expired []string
}

func (s *scriptedBookings) GetExpiredBookings(ctx context.Context, before time.Time, limit int) ([]*entity.BookingExpiration, error) {
	return s.due, nil
}

func (s *scriptedBookings) ExpireBooking(ctx context.Context, id string) error {
	s.expired = append(s.expired, id)
	return s.results[id]
}

func TestSweep_IsolatesFailures(t *testing.T) {
	bookings := &scriptedBookings{
		due: []*entity.BookingExpiration{{BookingID: "a"}, {BookingID: "b"}, {BookingID: "c"}},
		results: map[string]error{
			"a": errors.New("deadlock detected"),
			"b": entity.ErrInvalidTransition,
		},
	}
	reaper := NewExpiryReaper(bookings, time.Minute, 10, func() time.Time { return start })

	result := reaper.Sweep(context.Background())

	assert.Equal(t, SweepResult{Expired: 1, Skipped: 1, Failed: 1}, result)
	assert.Equal(t, []string{"a", "b", "c"}, bookings.expired)
}

func TestSweep_StopsOnCancellation(t *testing.T) {
	bookings := &scriptedBookings{due: []*entity.BookingExpiration{{BookingID: "a"}}}
	reaper := NewExpiryReaper(bookings, time.Minute, 10, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, SweepResult{}, reaper.Sweep(ctx))
	assert.Empty(t, bookings.expired)
}
