package transport

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sunilkarki98/staysewa-sub001/config"
	"github.com/sunilkarki98/staysewa-sub001/internal/transport/middleware"
)

type Handlers struct {
	Booking *BookingHandler
	Payment *PaymentHandler
	Unit    *UnitHandler
	Coupon  *CouponHandler

	// Set only when notifications go through the Redis queue
	DeadLetter *DeadLetterHandler
}

func InitRoutes(cfg *config.Config, h Handlers) *gin.Engine {

	router := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Gateway.WebsiteURL}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")

	// Middleware
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig))
	router.Use(middleware.Logger())
	router.Use(middleware.Timeout(cfg.Server.Timeout))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"version":   cfg.Server.AppVersion,
			"timestamp": time.Now().UTC(),
		})
	})

	// API routes
	api := router.Group("/api/v1")
	{
		// Gateway callbacks carry no token
		api.POST("/payments/webhook", h.Payment.Webhook)
		api.GET("/payments/callback", h.Payment.Callback)

		// Catalog reads
		units := api.Group("/units")
		{
			units.GET("/:id/quote", h.Unit.GetQuote)
			units.GET("/:id/availability", h.Unit.GetAvailability)
		}

		auth := api.Group("", middleware.Auth(cfg.JWT.Secret))

		// Booking routes
		bookings := auth.Group("/bookings")
		{
			bookings.POST("", h.Booking.CreateBooking)
			bookings.GET("", h.Booking.ListBookings)
			bookings.GET("/:id", h.Booking.GetBooking)
			bookings.PATCH("/:id/status", h.Booking.UpdateStatus)
		}

		// Payment routes
		payments := auth.Group("/payments")
		{
			payments.POST("/initiate", h.Payment.Initiate)
			payments.POST("/verify", h.Payment.Verify)
		}

		auth.POST("/coupons/validate", h.Coupon.ValidateCoupon)

		// Admin routes
		admin := auth.Group("/admin")
		{
			admin.PUT("/units/:id/inventory", h.Unit.SetInventory)

			if h.DeadLetter != nil {
				admin.GET("/notifications/dead-letters", h.DeadLetter.ListDeadLetters)
				admin.POST("/notifications/dead-letters/:id/requeue", h.DeadLetter.RequeueDeadLetter)
				admin.DELETE("/notifications/dead-letters/:id", h.DeadLetter.DeleteDeadLetter)
			}
		}
	}

	return router
}
