package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterOptions настройки HTTP слоя
type RouterOptions struct {
	Production         bool
	RateLimitPerMinute int
	OperatorToken      string
}

// NewRouter настраивает маршруты /api/v1
func NewRouter(h *Handler, opts RouterOptions, logger *zap.Logger) *gin.Engine {
	if opts.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggerMiddleware(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	api.Use(AuthMiddleware(), RateLimitMiddleware(opts.RateLimitPerMinute, logger))
	{
		bookings := api.Group("/bookings")
		{
			bookings.POST("", h.CreateBooking)
			bookings.GET("/:id", h.GetBooking)
			bookings.GET("/:id/history", h.BookingHistory)
			bookings.POST("/:id/approve", h.ApproveBooking)
			bookings.POST("/:id/confirm", h.ConfirmBooking)
			bookings.POST("/:id/complete", h.CompleteBooking)
			bookings.POST("/:id/cancel", h.CancelBooking)
			bookings.POST("/:id/reschedule", h.RequestReschedule)
			bookings.POST("/:id/rebook", h.RequestRebook)
		}

		modifications := api.Group("/modifications")
		{
			modifications.POST("/:id/approve", h.ApproveModification)
			modifications.POST("/:id/reject", h.RejectModification)
			modifications.POST("/:id/cancel", h.CancelModification)
		}

		wallets := api.Group("/wallets")
		{
			wallets.GET("/:userId", h.GetWallet)
			wallets.POST("/:userId/debit", h.DebitWallet)
		}

		// сверка платежей и ручные начисления
		operator := api.Group("/operator")
		operator.Use(OperatorMiddleware(opts.OperatorToken, logger))
		{
			operator.POST("/transfers/:reference/receipt", h.RecordTransferReceipt)
			operator.POST("/payments/:reference/confirm", h.ConfirmPayment)
			operator.POST("/wallets/:userId/credit", h.CreditWallet)
		}
	}

	return r
}
