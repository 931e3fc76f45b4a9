package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransferRecorder отмечает поступление банковского перевода
type TransferRecorder interface {
	RecordReceipt(ctx context.Context, transactionID string, amount decimal.Decimal) error
}

// Handler HTTP обработчики движка
type Handler struct {
	bookings      *service.BookingService
	modifications *service.ModificationService
	wallets       *service.WalletService
	transfers     TransferRecorder
	logger        *zap.Logger
}

func NewHandler(
	bookings *service.BookingService,
	modifications *service.ModificationService,
	wallets *service.WalletService,
	transfers TransferRecorder,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		bookings:      bookings,
		modifications: modifications,
		wallets:       wallets,
		transfers:     transfers,
		logger:        logger,
	}
}

// CreateBookingRequest тело POST /bookings
type CreateBookingRequest struct {
	IdempotencyKey    string   `json:"idempotency_key"`
	TeacherID         int64    `json:"teacher_id" binding:"required"`
	SubjectTemplateID int64    `json:"subject_template_id" binding:"required"`
	Dates             []string `json:"dates" binding:"required,min=1"`
	AvailabilityIDs   []int64  `json:"availability_ids" binding:"required,min=1"`
	Notes             string   `json:"notes"`
	Currency          string   `json:"currency"`
	PaymentMethod     string   `json:"payment_method" binding:"required"`
	PaymentToken      string   `json:"payment_token"`
}

// ModificationBody тело запросов на перенос и повторную запись
type ModificationBody struct {
	NewDate         string  `json:"new_date" binding:"required"`
	AvailabilityIDs []int64 `json:"availability_ids" binding:"required,min=1"`
	Reason          string  `json:"reason"`
}

type noteBody struct {
	Reason string `json:"reason"`
	Note   string `json:"note"`
}

// ReceiptBody тело отметки о поступлении перевода
type ReceiptBody struct {
	Amount string `json:"amount" binding:"required"`
}

// LedgerBody тело ручного начисления или списания
type LedgerBody struct {
	Amount      string `json:"amount" binding:"required"`
	Description string `json:"description"`
}

// CreateBooking POST /api/v1/bookings
func (h *Handler) CreateBooking(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	dates := make([]time.Time, 0, len(req.Dates))
	for _, d := range req.Dates {
		date, err := time.Parse(time.DateOnly, d)
		if err != nil {
			badRequest(c, "dates must be in YYYY-MM-DD format")
			return
		}
		dates = append(dates, date)
	}

	method, err := model.ParsePaymentMethod(req.PaymentMethod, req.PaymentToken)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	key := req.IdempotencyKey
	if key == "" {
		key = c.GetHeader("Idempotency-Key")
	}

	result, err := h.bookings.CreateBooking(c.Request.Context(), model.BookingDraft{
		IdempotencyKey:    key,
		StudentID:         currentUser(c),
		TeacherID:         req.TeacherID,
		SubjectTemplateID: req.SubjectTemplateID,
		Dates:             dates,
		AvailabilityIDs:   req.AvailabilityIDs,
		Notes:             req.Notes,
		Currency:          req.Currency,
		PaymentMethod:     method,
		Actor:             actorFrom(c),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// GetBooking GET /api/v1/bookings/:id
func (h *Handler) GetBooking(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	booking, err := h.bookings.GetBooking(c.Request.Context(), id, currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// BookingHistory GET /api/v1/bookings/:id/history
func (h *Handler) BookingHistory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	history, err := h.bookings.History(c.Request.Context(), id, currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

type bookingTransition func(c *gin.Context, bookingID, userID int64, actor model.Actor) (*model.Booking, error)

func (h *Handler) transition(fn bookingTransition) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}

		booking, err := fn(c, id, currentUser(c), actorFrom(c))
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, booking)
	}
}

// ApproveBooking POST /api/v1/bookings/:id/approve
func (h *Handler) ApproveBooking(c *gin.Context) {
	h.transition(func(c *gin.Context, id, userID int64, actor model.Actor) (*model.Booking, error) {
		return h.bookings.Approve(c.Request.Context(), id, userID, actor)
	})(c)
}

// ConfirmBooking POST /api/v1/bookings/:id/confirm
func (h *Handler) ConfirmBooking(c *gin.Context) {
	h.transition(func(c *gin.Context, id, userID int64, actor model.Actor) (*model.Booking, error) {
		return h.bookings.Confirm(c.Request.Context(), id, userID, actor)
	})(c)
}

// CompleteBooking POST /api/v1/bookings/:id/complete
func (h *Handler) CompleteBooking(c *gin.Context) {
	h.transition(func(c *gin.Context, id, userID int64, actor model.Actor) (*model.Booking, error) {
		return h.bookings.Complete(c.Request.Context(), id, userID, actor)
	})(c)
}

// CancelBooking POST /api/v1/bookings/:id/cancel
func (h *Handler) CancelBooking(c *gin.Context) {
	var body noteBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}
	}

	h.transition(func(c *gin.Context, id, userID int64, actor model.Actor) (*model.Booking, error) {
		return h.bookings.Cancel(c.Request.Context(), id, userID, body.Reason, actor)
	})(c)
}

// RequestReschedule POST /api/v1/bookings/:id/reschedule
func (h *Handler) RequestReschedule(c *gin.Context) {
	h.requestModification(c, h.modifications.CreateRescheduleRequest)
}

// RequestRebook POST /api/v1/bookings/:id/rebook
func (h *Handler) RequestRebook(c *gin.Context) {
	h.requestModification(c, h.modifications.CreateRebookRequest)
}

func (h *Handler) requestModification(c *gin.Context, create func(ctx context.Context, req model.ModificationRequest) (*model.BookingModification, error)) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body ModificationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	date, err := time.Parse(time.DateOnly, body.NewDate)
	if err != nil {
		badRequest(c, "new_date must be in YYYY-MM-DD format")
		return
	}

	m, err := create(c.Request.Context(), model.ModificationRequest{
		BookingID:       id,
		StudentID:       currentUser(c),
		NewDate:         date,
		AvailabilityIDs: body.AvailabilityIDs,
		Reason:          body.Reason,
		Actor:           actorFrom(c),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// ApproveModification POST /api/v1/modifications/:id/approve
func (h *Handler) ApproveModification(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	m, err := h.modifications.ApproveModification(c.Request.Context(), id, currentUser(c), actorFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// RejectModification POST /api/v1/modifications/:id/reject
func (h *Handler) RejectModification(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body noteBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}
	}

	m, err := h.modifications.RejectModification(c.Request.Context(), id, currentUser(c), body.Note)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// CancelModification POST /api/v1/modifications/:id/cancel
func (h *Handler) CancelModification(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	m, err := h.modifications.CancelModification(c.Request.Context(), id, currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// RecordTransferReceipt POST /api/v1/operator/transfers/:reference/receipt
func (h *Handler) RecordTransferReceipt(c *gin.Context) {
	if h.transfers == nil {
		badRequest(c, "bank transfers are not enabled")
		return
	}

	var body ReceiptBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || !amount.IsPositive() {
		badRequest(c, "amount must be a positive decimal number")
		return
	}

	reference := c.Param("reference")
	if err := h.transfers.RecordReceipt(c.Request.Context(), reference, amount); err != nil {
		h.fail(c, err)
		return
	}

	h.logger.Info("Operator recorded bank transfer",
		zap.String("reference", reference),
		zap.String("amount", amount.StringFixed(2)),
		zap.Int64("operator_id", currentUser(c)))

	c.JSON(http.StatusOK, gin.H{"reference": reference, "amount": amount})
}

// ConfirmPayment POST /api/v1/operator/payments/:reference/confirm
func (h *Handler) ConfirmPayment(c *gin.Context) {
	bookings, err := h.bookings.ConfirmPayment(c.Request.Context(), c.Param("reference"), actorFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

// GetWallet GET /api/v1/wallets/:userId
func (h *Handler) GetWallet(c *gin.Context) {
	userID, ok := h.walletOwner(c)
	if !ok {
		return
	}

	wallet, err := h.wallets.Balance(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	txs, err := h.wallets.Transactions(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"wallet": wallet, "transactions": txs})
}

// CreditWallet POST /api/v1/operator/wallets/:userId/credit
func (h *Handler) CreditWallet(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || userID <= 0 {
		badRequest(c, "invalid user id")
		return
	}

	h.postLedger(c, userID, func(ctx context.Context, userID int64, amount decimal.Decimal, description string) (*model.WalletTransaction, error) {
		t, err := h.wallets.Credit(ctx, userID, amount, description)
		if err == nil {
			h.logger.Info("Operator credited wallet",
				zap.Int64("user_id", userID),
				zap.Int64("operator_id", currentUser(c)),
				zap.String("amount", amount.StringFixed(2)))
		}
		return t, err
	})
}

// DebitWallet POST /api/v1/wallets/:userId/debit
func (h *Handler) DebitWallet(c *gin.Context) {
	userID, ok := h.walletOwner(c)
	if !ok {
		return
	}
	h.postLedger(c, userID, h.wallets.Debit)
}

type ledgerFunc func(ctx context.Context, userID int64, amount decimal.Decimal, description string) (*model.WalletTransaction, error)

func (h *Handler) postLedger(c *gin.Context, userID int64, post ledgerFunc) {
	var body LedgerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		badRequest(c, "amount must be a decimal number")
		return
	}

	t, err := post(c.Request.Context(), userID, amount, body.Description)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// walletOwner кошелёк доступен только его владельцу
func (h *Handler) walletOwner(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || userID <= 0 {
		badRequest(c, "invalid user id")
		return 0, false
	}
	if userID != currentUser(c) {
		h.fail(c, service.ErrUnauthorized)
		return 0, false
	}
	return userID, true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}
