package transport

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
	"github.com/sunilkarki98/staysewa-sub001/internal/transport/middleware"
	"github.com/sunilkarki98/staysewa-sub001/pkg/queue"
)

// DeadLetterStore is the dead letter set of the notification queue.
type DeadLetterStore interface {
	List(ctx context.Context, limit int) ([]*queue.DeadLetter, error)
	Requeue(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// DeadLetterHandler lets admins inspect and replay undeliverable notifications.
type DeadLetterHandler struct {
	store DeadLetterStore
}

func NewDeadLetterHandler(store DeadLetterStore) *DeadLetterHandler {
	return &DeadLetterHandler{store: store}
}

func (h *DeadLetterHandler) ListDeadLetters(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		respondBadRequest(c, fmt.Errorf("limit must be between 1 and 500"))
		return
	}

	letters, err := h.store.List(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Dead letters retrieved",
		Data:    letters,
		Meta:    gin.H{"count": len(letters), "limit": limit},
	})
}

func (h *DeadLetterHandler) RequeueDeadLetter(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}
	if err := h.store.Requeue(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Dead letter requeued", gin.H{"id": c.Param("id")})
}

func (h *DeadLetterHandler) DeleteDeadLetter(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}
	if err := h.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Dead letter deleted", gin.H{"id": c.Param("id")})
}

func requireAdmin(c *gin.Context) bool {
	actor, _ := middleware.ActorFrom(c)
	if actor.Role != entity.RoleAdmin {
		respondError(c, fmt.Errorf("%w: admin role required", entity.ErrForbidden))
		return false
	}
	return true
}
