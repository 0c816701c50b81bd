package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
	"github.com/sunilkarki98/staysewa-sub001/internal/service"
	"github.com/sunilkarki98/staysewa-sub001/internal/transport/middleware"
)

type PaymentHandler struct {
	paymentService service.PaymentService
}

func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

type InitiatePaymentRequest struct {
	BookingID string `json:"booking_id" binding:"required"`
	Amount    int64  `json:"amount" binding:"required,min=1"`
}

type VerifyPaymentRequest struct {
	Pidx string `json:"pidx" binding:"required"`
}

func (h *PaymentHandler) Initiate(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	var req InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	intent, err := h.paymentService.Initiate(c.Request.Context(), req.BookingID, req.Amount, actor)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, "Payment initiated", intent)
}

func (h *PaymentHandler) Verify(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	outcome, err := h.paymentService.Verify(c.Request.Context(), req.Pidx)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Payment verified", outcome)
}

// Webhook accepts JSON or form bodies. The payload is only a hint; the
// outcome comes from the gateway lookup.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	var payload entity.WebhookPayload
	if err := c.ShouldBind(&payload); err != nil {
		respondBadRequest(c, err)
		return
	}
	h.respondOutcome(c, h.paymentService.HandleWebhook(c.Request.Context(), payload))
}

// Callback is where the gateway redirects the guest after checkout.
func (h *PaymentHandler) Callback(c *gin.Context) {
	var payload entity.WebhookPayload
	if err := c.ShouldBindQuery(&payload); err != nil {
		respondBadRequest(c, err)
		return
	}
	h.respondOutcome(c, h.paymentService.HandleWebhook(c.Request.Context(), payload))
}

func (h *PaymentHandler) respondOutcome(c *gin.Context, outcome *entity.PaymentOutcome) {
	if outcome.Status == entity.OutcomeRejected {
		c.JSON(http.StatusBadRequest, SuccessResponse{Success: false, Message: "Payment notification rejected", Data: outcome})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: outcome.Success(), Message: "Payment notification processed", Data: outcome})
}
