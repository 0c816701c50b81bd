package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
	"github.com/sunilkarki98/staysewa-sub001/internal/service"
	"github.com/sunilkarki98/staysewa-sub001/internal/transport/middleware"
)

type BookingHandler struct {
	bookingService service.BookingService
}

func NewBookingHandler(bookingService service.BookingService) *BookingHandler {
	return &BookingHandler{bookingService: bookingService}
}

// UpdateStatusRequest asks for a booking status change.
type UpdateStatusRequest struct {
	Status entity.BookingStatus `json:"status" binding:"required"`
	Reason string               `json:"reason" binding:"omitempty,max=500"`
}

func (h *BookingHandler) CreateBooking(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	var req service.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	req.UserID = actor.ID

	booking, err := h.bookingService.CreateBooking(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, "Booking reserved, complete the payment before it expires", booking)
}

func (h *BookingHandler) GetBooking(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	booking, err := h.bookingService.GetBooking(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Booking retrieved successfully", booking)
}

func (h *BookingHandler) ListBookings(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	bookings, err := h.bookingService.ListBookings(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	if bookings == nil {
		bookings = []*entity.Booking{}
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Bookings retrieved successfully",
		Data:    bookings,
		Meta:    map[string]interface{}{"total": len(bookings)},
	})
}

func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	booking, err := h.bookingService.TransitionStatus(c.Request.Context(), c.Param("id"), req.Status, actor, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Booking status updated", booking)
}
