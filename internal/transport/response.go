package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
	"github.com/sunilkarki98/staysewa-sub001/pkg/queue"
)

// SuccessResponse wraps a successful reply.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// ErrorResponse carries a machine code and a message.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: wrapped sentinels come before their parents.
var errorMappings = []errorMapping{
	{entity.ErrInvalidDateRange, http.StatusBadRequest, "invalid_dates"},
	{entity.ErrValidation, http.StatusBadRequest, "validation_error"},
	{entity.ErrInsufficientInventory, http.StatusConflict, "unavailable"},
	{entity.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{entity.ErrIllegalPairing, http.StatusConflict, "illegal_pairing"},
	{entity.ErrDuplicatePayment, http.StatusConflict, "duplicate_payment"},
	{entity.ErrForbidden, http.StatusForbidden, "forbidden"},
	{entity.ErrNotFound, http.StatusNotFound, "not_found"},
	{queue.ErrDeadLetterNotFound, http.StatusNotFound, "not_found"},
	{entity.ErrCouponInvalid, http.StatusUnprocessableEntity, "coupon_invalid"},
	{entity.ErrGateway, http.StatusBadGateway, "gateway_error"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
}

func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

func respondError(c *gin.Context, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		}).WithError(err).Error("Request failed with internal error")
		message = "internal server error"
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Success: false, Code: code, Error: message})
}

func respondBadRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Success: false, Code: "validation_error", Error: err.Error()})
}

func respondOK(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, SuccessResponse{Success: true, Message: message, Data: data})
}
