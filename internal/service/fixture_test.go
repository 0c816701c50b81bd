package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/sunilkarki98/staysewa-sub001/config"
	"github.com/sunilkarki98/staysewa-sub001/internal/database/memory"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
)

// 2025-03-10 is a Monday.
var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

const (
	testUnitID     = "unit-1"
	testPropertyID = "property-1"
	testOwnerID    = "owner-1"
	testGuestID    = "guest-1"
	otherGuestID   = "guest-2"
)

var (
	guestActor = entity.Actor{ID: testGuestID, Role: entity.RoleCustomer}
	otherActor = entity.Actor{ID: otherGuestID, Role: entity.RoleCustomer}
	ownerActor = entity.Actor{ID: testOwnerID, Role: entity.RoleOwner}
	adminActor = entity.Actor{ID: "admin-1", Role: entity.RoleAdmin}
)

func day(d int) entity.Date {
	return entity.NewDate(2025, time.March, d)
}

func stay(from, to int) entity.Stay {
	return entity.Stay{CheckIn: day(from), CheckOut: day(to)}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentNotice struct {
	UserID string
	Title  string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
}

func (n *recordingNotifier) Notify(ctx context.Context, userID, title, body string, metadata map[string]string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotice{UserID: userID, Title: title})
	return true
}

func (n *recordingNotifier) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Title)
	}
	return out
}

func (n *recordingNotifier) count(title string) int {
	total := 0
	for _, t := range n.titles() {
		if t == title {
			total++
		}
	}
	return total
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []entity.BookingEvent
}

func (p *recordingPublisher) PublishBookingEvent(ctx context.Context, event entity.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []entity.BookingEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]entity.BookingEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeGateway struct {
	mu        sync.Mutex
	seq       int
	intents   map[string]entity.IntentRequest
	lookups   map[string]*entity.GatewayLookup
	lookupErr error
	calls     int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		intents: make(map[string]entity.IntentRequest),
		lookups: make(map[string]*entity.GatewayLookup),
	}
}

func (g *fakeGateway) CreateIntent(ctx context.Context, req entity.IntentRequest) (*entity.GatewayIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	pidx := fmt.Sprintf("pidx-%d", g.seq)
	g.intents[pidx] = req
	g.lookups[pidx] = &entity.GatewayLookup{Pidx: pidx, Status: entity.GatewayStatusPending, TotalAmount: req.Amount}
	return &entity.GatewayIntent{
		Pidx:       pidx,
		PaymentURL: "https://pay.example/?pidx=" + pidx,
		ExpiresAt:  testNow.Add(30 * time.Minute),
		BookingID:  req.OrderID,
		Amount:     req.Amount,
	}, nil
}

func (g *fakeGateway) Lookup(ctx context.Context, pidx string) (*entity.GatewayLookup, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.lookupErr != nil {
		return nil, g.lookupErr
	}
	l, ok := g.lookups[pidx]
	if !ok {
		return nil, fmt.Errorf("%w: unknown pidx", entity.ErrGateway)
	}
	c := *l
	c.Raw = json.RawMessage(fmt.Sprintf(`{"pidx":%q,"status":%q,"total_amount":%d}`, pidx, l.Status, l.TotalAmount))
	return &c, nil
}

// settle makes the gateway report pidx as paid.
func (g *fakeGateway) settle(pidx string, status entity.GatewayStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookups[pidx].Status = status
	if status == entity.GatewayStatusCompleted {
		g.lookups[pidx].TransactionID = "txn-" + pidx
	}
}

func (g *fakeGateway) setPaidAmount(pidx string, amount int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookups[pidx].TotalAmount = amount
}

type fixture struct {
	t          *testing.T
	store      *memory.Store
	clock      *fakeClock
	notifier   *recordingNotifier
	events     *recordingPublisher
	gateway    *fakeGateway
	dispatcher *Dispatcher
	cfg        config.BookingConfig

	pricing   PricingService
	inventory InventoryService
	coupons   CouponService
	bookings  BookingService
	payments  PaymentService
}

func testBookingConfig() config.BookingConfig {
	return config.BookingConfig{
		HoldWindow:            15 * time.Minute,
		MaxNights:             30,
		CommissionRate:        0.10,
		Currency:              "NPR",
		FreeCancellationHours: 24,
	}
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithConfig(t, testBookingConfig())
}

func newFixtureWithConfig(t *testing.T, cfg config.BookingConfig) *fixture {
	t.Helper()

	f := &fixture{
		t:        t,
		store:    memory.NewStore(),
		clock:    &fakeClock{now: testNow},
		notifier: &recordingNotifier{},
		events:   &recordingPublisher{},
		gateway:  newFakeGateway(),
		cfg:      cfg,
	}
	f.dispatcher = NewDispatcher(f.notifier, f.events)

	f.store.AddUser(&entity.User{ID: testGuestID, Email: "guest@example.com", Name: "Sita", Role: entity.RoleCustomer})
	f.store.AddUser(&entity.User{ID: otherGuestID, Email: "other@example.com", Name: "Ram", Role: entity.RoleCustomer})
	f.store.AddUser(&entity.User{ID: testOwnerID, Email: "owner@example.com", Name: "Hari", Role: entity.RoleOwner})
	f.store.AddUnit(&entity.Unit{
		ID:              testUnitID,
		PropertyID:      testPropertyID,
		OwnerID:         testOwnerID,
		Name:            "Twin Room",
		PropertyName:    "Hotel Annapurna",
		PropertyAddress: "Thamel, Kathmandu",
		BasePrice:       1000,
		Currency:        "NPR",
		MaxOccupancy:    2,
		Active:          true,
	})

	clock := Clock(f.clock.Now)
	f.pricing = NewPricingService(f.store, cfg)
	f.inventory = NewInventoryService(f.store, nil, clock)
	f.coupons = NewCouponService(f.store, clock)
	f.bookings = NewBookingService(f.store, nil, f.dispatcher, cfg, clock)
	f.payments = NewPaymentService(f.store, f.gateway, nil, f.dispatcher, cfg, config.GatewayConfig{
		ReturnURL:  "http://localhost/api/v1/payments/callback",
		WebsiteURL: "http://localhost",
	}, clock)
	return f
}

// open sets capacity for every night in [from, to) of March 2025.
func (f *fixture) open(from, to, capacity int) {
	f.t.Helper()
	require.NoError(f.t, f.inventory.SetCapacity(context.Background(), entity.CapacityUpdate{
		UnitID:         testUnitID,
		From:           day(from),
		To:             day(to),
		AvailableCount: capacity,
		Status:         entity.SlotStatusAvailable,
	}, adminActor))
}

func (f *fixture) available(night int) int {
	f.t.Helper()
	slots, err := f.store.Inventory().GetSlots(context.Background(), testUnitID, day(night), day(night+1))
	require.NoError(f.t, err)
	require.Len(f.t, slots, 1)
	return slots[0].AvailableCount
}

func (f *fixture) book(userID string, s entity.Stay) *entity.Booking {
	f.t.Helper()
	b, err := f.bookings.CreateBooking(context.Background(), f.request(userID, s))
	require.NoError(f.t, err)
	return b
}

func (f *fixture) request(userID string, s entity.Stay) *CreateBookingRequest {
	return &CreateBookingRequest{
		UserID:     userID,
		UnitID:     testUnitID,
		CheckIn:    s.CheckIn,
		CheckOut:   s.CheckOut,
		GuestCount: 2,
		Guest:      entity.GuestInfo{Name: "Sita Sharma", Email: "guest@example.com"},
	}
}

// pay initiates and settles a payment, returning its pidx.
func (f *fixture) pay(b *entity.Booking) string {
	f.t.Helper()
	intent, err := f.payments.Initiate(context.Background(), b.ID, b.TotalAmount, entity.Actor{ID: b.UserID, Role: entity.RoleCustomer})
	require.NoError(f.t, err)
	f.gateway.settle(intent.Pidx, entity.GatewayStatusCompleted)
	return intent.Pidx
}

func (f *fixture) reload(id string) *entity.Booking {
	f.t.Helper()
	b, err := f.store.Bookings().GetByID(context.Background(), id)
	require.NoError(f.t, err)
	return b
}
