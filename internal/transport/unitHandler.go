package transport

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
	"github.com/sunilkarki98/staysewa-sub001/internal/service"
	"github.com/sunilkarki98/staysewa-sub001/internal/transport/middleware"
)

type UnitHandler struct {
	pricingService   service.PricingService
	inventoryService service.InventoryService
}

func NewUnitHandler(pricingService service.PricingService, inventoryService service.InventoryService) *UnitHandler {
	return &UnitHandler{pricingService: pricingService, inventoryService: inventoryService}
}

// SetInventoryRequest opens or adjusts nights in [from, to).
type SetInventoryRequest struct {
	From           string            `json:"from" binding:"required"`
	To             string            `json:"to" binding:"required"`
	AvailableCount int               `json:"available_count" binding:"min=0,max=1000"`
	PriceOverride  *int64            `json:"price_override" binding:"omitempty,min=0"`
	MinNights      int               `json:"min_nights" binding:"omitempty,min=1,max=365"`
	Status         entity.SlotStatus `json:"status" binding:"omitempty,oneof=available blocked"`
}

func (h *UnitHandler) GetQuote(c *gin.Context) {
	stay, err := parseRange(c.Query("check_in"), c.Query("check_out"))
	if err != nil {
		respondError(c, err)
		return
	}
	guests, err := strconv.Atoi(c.DefaultQuery("guests", "1"))
	if err != nil {
		respondBadRequest(c, err)
		return
	}

	quote, err := h.pricingService.ComputePrice(c.Request.Context(), c.Param("id"), stay, guests)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Quote computed", quote)
}

func (h *UnitHandler) GetAvailability(c *gin.Context) {
	stay, err := parseRange(c.Query("from"), c.Query("to"))
	if err != nil {
		respondError(c, err)
		return
	}

	slots, err := h.inventoryService.GetAvailability(c.Request.Context(), c.Param("id"), stay.CheckIn, stay.CheckOut)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Availability retrieved", slots)
}

func (h *UnitHandler) SetInventory(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	var req SetInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	stay, err := parseRange(req.From, req.To)
	if err != nil {
		respondError(c, err)
		return
	}

	update := entity.CapacityUpdate{
		UnitID:         c.Param("id"),
		From:           stay.CheckIn,
		To:             stay.CheckOut,
		AvailableCount: req.AvailableCount,
		PriceOverride:  req.PriceOverride,
		MinNights:      req.MinNights,
		Status:         req.Status,
	}
	if err := h.inventoryService.SetCapacity(c.Request.Context(), update, actor); err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Inventory updated", nil)
}

func parseRange(from, to string) (entity.Stay, error) {
	checkIn, err := entity.ParseDate(from)
	if err != nil {
		return entity.Stay{}, err
	}
	checkOut, err := entity.ParseDate(to)
	if err != nil {
		return entity.Stay{}, err
	}
	stay := entity.Stay{CheckIn: checkIn, CheckOut: checkOut}
	return stay, stay.Validate()
}
