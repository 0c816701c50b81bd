package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sunilkarki98/staysewa-sub001/internal/service"
	"github.com/sunilkarki98/staysewa-sub001/internal/transport/middleware"
)

type CouponHandler struct {
	couponService service.CouponService
}

func NewCouponHandler(couponService service.CouponService) *CouponHandler {
	return &CouponHandler{couponService: couponService}
}

type ValidateCouponRequest struct {
	Code       string `json:"code" binding:"required,max=50"`
	Amount     int64  `json:"amount" binding:"required,min=1"`
	PropertyID string `json:"property_id" binding:"required"`
}

type CouponPreview struct {
	Code     string `json:"code"`
	Discount int64  `json:"discount"`
	Total    int64  `json:"total"`
}

// ValidateCoupon previews a discount without redeeming the coupon.
func (h *CouponHandler) ValidateCoupon(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	var req ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	discount, err := h.couponService.Apply(c.Request.Context(), req.Code, req.Amount, req.PropertyID, actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Coupon is valid", CouponPreview{
		Code:     req.Code,
		Discount: discount,
		Total:    req.Amount - discount,
	})
}
