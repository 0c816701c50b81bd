package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sunilkarki98/staysewa-sub001/config"
	"github.com/sunilkarki98/staysewa-sub001/internal/database/memory"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
	"github.com/sunilkarki98/staysewa-sub001/internal/service"
	"github.com/sunilkarki98/staysewa-sub001/internal/transport/middleware"
)

const testSecret = "test-secret-with-enough-length"

var now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type stubGateway struct{}

func (stubGateway) CreateIntent(ctx context.Context, req entity.IntentRequest) (*entity.GatewayIntent, error) {
	return &entity.GatewayIntent{Pidx: "pidx-" + req.OrderID, PaymentURL: "https://pay.example", BookingID: req.OrderID, Amount: req.Amount}, nil
}

func (stubGateway) Lookup(ctx context.Context, pidx string) (*entity.GatewayLookup, error) {
	return &entity.GatewayLookup{Pidx: pidx, Status: entity.GatewayStatusPending}, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	return newTestRouterWith(t, nil)
}

func newTestRouterWith(t *testing.T, deadLetters *DeadLetterHandler) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	store.AddUser(&entity.User{ID: "guest-1", Role: entity.RoleCustomer})
	store.AddUser(&entity.User{ID: "guest-2", Role: entity.RoleCustomer})
	store.AddUnit(&entity.Unit{
		ID: "unit-1", PropertyID: "property-1", OwnerID: "owner-1",
		BasePrice: 1000, Currency: "NPR", MaxOccupancy: 2, Active: true,
	})

	clock := func() time.Time { return now }
	cfg := &config.Config{
		Server:  config.ServerConfig{Timeout: 5 * time.Second},
		Gateway: config.GatewayConfig{ReturnURL: "http://localhost/cb", WebsiteURL: "http://localhost"},
		JWT:     config.JWTConfig{Secret: testSecret},
		Booking: config.BookingConfig{HoldWindow: 15 * time.Minute, MaxNights: 30, Currency: "NPR"},
	}

	inventory := service.NewInventoryService(store, nil, clock)
	bookings := service.NewBookingService(store, nil, nil, cfg.Booking, clock)
	payments := service.NewPaymentService(store, stubGateway{}, nil, nil, cfg.Booking, cfg.Gateway, clock)

	require.NoError(t, inventory.SetCapacity(context.Background(), entity.CapacityUpdate{
		UnitID: "unit-1", From: entity.NewDate(2025, time.March, 10), To: entity.NewDate(2025, time.March, 20), AvailableCount: 1,
	}, entity.Actor{ID: "admin-1", Role: entity.RoleAdmin}))

	return InitRoutes(cfg, Handlers{
		Booking: NewBookingHandler(bookings),
		Payment: NewPaymentHandler(payments),
		Unit:    NewUnitHandler(service.NewPricingService(store, cfg.Booking), inventory),
		Coupon:  NewCouponHandler(service.NewCouponService(store, clock)),

		DeadLetter: deadLetters,
	})
}

func token(t *testing.T, id string, role entity.Role) string {
	t.Helper()
	tok, err := middleware.CreateToken(testSecret, entity.Actor{ID: id, Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(router *gin.Engine, method, path, tok string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func bookingBody(checkIn, checkOut string) gin.H {
	return gin.H{
		"unit_id":     "unit-1",
		"check_in":    checkIn,
		"check_out":   checkOut,
		"guest_count": 1,
		"guest":       gin.H{"name": "Sita Sharma", "email": "sita@example.com"},
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{entity.ErrInvalidDateRange, http.StatusBadRequest, "invalid_dates"},
		{fmt.Errorf("wrapped: %w", entity.ErrValidation), http.StatusBadRequest, "validation_error"},
		{entity.ErrInsufficientInventory, http.StatusConflict, "unavailable"},
		{entity.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{entity.ErrForbidden, http.StatusForbidden, "forbidden"},
		{entity.ErrBookingNotFound, http.StatusNotFound, "not_found"},
		{entity.ErrCouponAlreadyApplied, http.StatusUnprocessableEntity, "coupon_invalid"},
		{entity.ErrGateway, http.StatusBadGateway, "gateway_error"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			status, code := statusFor(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestAuthRequired(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name string
		tok  string
	}{
		{name: "no token"},
		{name: "garbage token", tok: "not-a-jwt"},
		{name: "system role", tok: token(t, "system", entity.RoleSystem)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, http.MethodGet, "/api/v1/bookings", tt.tok, nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "unauthorized", decodeError(t, w).Code)
		})
	}
}

func TestBookingFlow(t *testing.T) {
	router := newTestRouter(t)
	guest := token(t, "guest-1", entity.RoleCustomer)

	w := do(router, http.MethodPost, "/api/v1/bookings", guest, bookingBody("2025-03-12", "2025-03-14"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Success bool           `json:"success"`
		Data    entity.Booking `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.True(t, created.Success)
	assert.Equal(t, entity.BookingStatusReserved, created.Data.Status)
	assert.Equal(t, int64(2000), created.Data.TotalAmount)

	w = do(router, http.MethodPost, "/api/v1/bookings", token(t, "guest-2", entity.RoleCustomer), bookingBody("2025-03-13", "2025-03-15"))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "unavailable", decodeError(t, w).Code)

	w = do(router, http.MethodGet, "/api/v1/bookings/"+created.Data.ID, token(t, "guest-2", entity.RoleCustomer), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(router, http.MethodPost, "/api/v1/payments/initiate", guest, gin.H{"booking_id": created.Data.ID, "amount": 2000})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(router, http.MethodPatch, "/api/v1/bookings/"+created.Data.ID+"/status", guest, gin.H{"status": "checked_in"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(router, http.MethodPatch, "/api/v1/bookings/"+created.Data.ID+"/status", guest, gin.H{"status": "cancelled", "reason": "changed plans"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(router, http.MethodGet, "/api/v1/bookings", guest, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Equal(t, map[string]interface{}{"total": float64(1)}, listed.Meta)
}

func TestCreateBooking_BadRequests(t *testing.T) {
	router := newTestRouter(t)
	guest := token(t, "guest-1", entity.RoleCustomer)

	w := do(router, http.MethodPost, "/api/v1/bookings", guest, bookingBody("12/03/2025", "2025-03-14"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body := bookingBody("2025-03-12", "2025-03-14")
	body["guest_count"] = 0
	w = do(router, http.MethodPost, "/api/v1/bookings", guest, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodPost, "/api/v1/bookings", guest, bookingBody("2025-03-14", "2025-03-12"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_dates", decodeError(t, w).Code)
}

func TestPublicCatalogRoutes(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, http.MethodGet, "/api/v1/units/unit-1/quote?check_in=2025-03-12&check_out=2025-03-15&guests=2", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var quote struct {
		Data entity.Quote `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quote))
	assert.Equal(t, int64(3000), quote.Data.Total)

	w = do(router, http.MethodGet, "/api/v1/units/unit-1/availability?from=2025-03-18&to=2025-03-22", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var availability struct {
		Data []entity.InventorySlot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &availability))
	require.Len(t, availability.Data, 4)
	assert.Equal(t, 1, availability.Data[0].AvailableCount)
	assert.Equal(t, entity.SlotStatusBlocked, availability.Data[3].Status)

	w = do(router, http.MethodGet, "/api/v1/units/missing/quote?check_in=2025-03-12&check_out=2025-03-15", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetInventory_RequiresOwnership(t *testing.T) {
	router := newTestRouter(t)
	body := gin.H{"from": "2025-03-20", "to": "2025-03-25", "available_count": 2}

	w := do(router, http.MethodPut, "/api/v1/admin/units/unit-1/inventory", token(t, "guest-1", entity.RoleCustomer), body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(router, http.MethodPut, "/api/v1/admin/units/unit-1/inventory", token(t, "owner-1", entity.RoleOwner), body)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestWebhook(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, http.MethodPost, "/api/v1/payments/webhook", "", gin.H{"status": "Completed"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodGet, "/api/v1/payments/callback?pidx=unknown&status=Completed", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp struct {
		Success bool                  `json:"success"`
		Data    entity.PaymentOutcome `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, entity.OutcomeRejected, resp.Data.Status)
}
