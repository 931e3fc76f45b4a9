package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Options настройки сервисов бронирования
type Options struct {
	// CancellationLeadTime за сколько до начала занятия закрывается отмена
	CancellationLeadTime time.Duration
	// RequestTimeout общий бюджет времени на создание бронирования
	RequestTimeout time.Duration
	Now            func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

type BookingService struct {
	stores     Stores
	resolver   *AvailabilityResolver
	wallets    *WalletService
	payments   *PaymentService
	guard      RequestGuard
	dispatcher *Dispatcher
	validate   *validator.Validate
	opts       Options
	logger     *zap.Logger
}

func NewBookingService(
	stores Stores,
	resolver *AvailabilityResolver,
	wallets *WalletService,
	payments *PaymentService,
	guard RequestGuard,
	dispatcher *Dispatcher,
	opts Options,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		stores:     stores,
		resolver:   resolver,
		wallets:    wallets,
		payments:   payments,
		guard:      guard,
		dispatcher: dispatcher,
		validate:   validator.New(),
		opts:       opts,
		logger:     logger,
	}
}

// CreateBooking создаёт бронирования по черновику: по одному на каждую дату,
// на которую нашлись слоты, и проводит их оплату одной операцией
func (s *BookingService) CreateBooking(ctx context.Context, draft model.BookingDraft) (*model.BookingResult, error) {
	if err := s.validate.Struct(draft); err != nil {
		return nil, newError(ErrInvalidRequest, err.Error(), err)
	}

	if draft.IdempotencyKey == "" || s.guard == nil {
		return s.createBooking(ctx, draft)
	}

	key := fmt.Sprintf("booking:%d:%s", draft.StudentID, draft.IdempotencyKey)

	if result, ok := s.replay(ctx, key); ok {
		return result, nil
	}

	release, ok, err := s.guard.Acquire(ctx, key)
	if err != nil {
		return nil, newError(ErrPersistenceFailure, "request guard is unavailable", err)
	}
	if !ok {
		return nil, ErrDuplicateRequest
	}
	defer release()

	// результат мог сохраниться, пока ждали блокировку
	if result, ok := s.replay(ctx, key); ok {
		return result, nil
	}

	result, err := s.createBooking(ctx, draft)
	if err != nil {
		return nil, err
	}

	if err := s.guard.Store(ctx, key, result); err != nil {
		s.logger.Warn("Failed to store booking result", zap.String("key", key), zap.Error(err))
	}

	return result, nil
}

func (s *BookingService) replay(ctx context.Context, key string) (*model.BookingResult, bool) {
	var cached model.BookingResult
	ok, err := s.guard.Load(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("Failed to load stored booking result", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if ok {
		s.logger.Info("Replaying stored booking result", zap.String("key", key))
	}
	return &cached, ok
}

func (s *BookingService) createBooking(ctx context.Context, draft model.BookingDraft) (*model.BookingResult, error) {
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	subject, err := s.stores.Subjects.FindOrCreate(ctx, draft.TeacherID, draft.SubjectTemplateID)
	if err != nil {
		if errors.Is(err, repository.ErrSubjectTemplateNotFound) {
			return nil, newError(ErrNotFound, "subject template or teacher not found", err)
		}
		return nil, persistenceError(err)
	}

	timings, skipped, err := s.resolver.Resolve(ctx, draft.TeacherID, draft.Dates, draft.AvailabilityIDs, ResolveCreate)
	if err != nil {
		return nil, err
	}

	walletCurrency := s.wallets.Currency()
	kind := draft.PaymentMethod.Kind()

	bookings := make([]*model.Booking, 0, len(timings))
	total := decimal.Zero
	for _, timing := range timings {
		amount, err := s.payments.Convert(subject.PriceFor(timing.DurationMinutes), subject.Currency, walletCurrency)
		if err != nil {
			return nil, err
		}

		b := &model.Booking{
			Reference:     uuid.New(),
			StudentID:     draft.StudentID,
			TeacherID:     draft.TeacherID,
			SubjectID:     subject.ID,
			Notes:         draft.Notes,
			Amount:        amount,
			Currency:      walletCurrency,
			PaymentMethod: kind,
			CreatedBy:     draft.Actor.UserID,
		}
		if b.CreatedBy == 0 {
			b.CreatedBy = draft.StudentID
		}
		b.ApplyTiming(timing)
		bookings = append(bookings, b)
		total = total.Add(amount)
	}

	charge := ChargeRequest{
		StudentID:   draft.StudentID,
		Amount:      total,
		Currency:    draft.Currency,
		Method:      draft.PaymentMethod,
		Description: fmt.Sprintf("booking: %s x%d", subject.Name, len(bookings)),
	}
	free := !total.IsPositive()

	// внешний платёж проводится до открытия транзакции
	var payment *model.PaymentResult
	if IsExternal(kind) && !free {
		payment, err = s.payments.Charge(ctx, charge)
		if err != nil {
			return nil, err
		}
	}

	status := model.BookingStatusApproved
	if payment != nil && payment.Pending {
		status = model.BookingStatusPending
	}

	err = s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		switch {
		case free:
			payment = &model.PaymentResult{Success: true, Method: kind, Currency: walletCurrency, Message: "free lesson"}
		case IsExternal(kind):
			if err := s.payments.Record(ctx, draft.StudentID, payment, charge.Description); err != nil {
				return err
			}
		default:
			var err error
			payment, err = s.payments.Charge(ctx, charge)
			if err != nil {
				return err
			}
		}

		now := s.opts.now()
		for _, b := range bookings {
			b.Status = status
			b.PaymentReference = payment.Reference
			if status == model.BookingStatusApproved {
				b.ApprovedAt = &now
			}

			if err := s.stores.Bookings.Create(ctx, b); err != nil {
				return err
			}

			if err := s.stores.Sessions.Create(ctx, model.NewTeachingSession(b)); err != nil {
				return err
			}

			if err := appendHistory(ctx, s.stores.History, b.ID, model.HistoryCreated, actorOr(draft.Actor, draft.StudentID), nil, model.SnapshotOf(b)); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		if payment != nil && IsExternal(kind) && !free {
			s.compensate(ctx, draft.StudentID, payment, err)
		}
		return nil, bookingFailure(err)
	}

	result := &model.BookingResult{
		BookingIDs: bookingIDs(bookings),
		References: make([]uuid.UUID, len(bookings)),
		Status:     status,
		Payment:    payment,
		SkipDates:  skipped,
	}
	for i, b := range bookings {
		result.References[i] = b.Reference
	}

	s.logger.Info("Bookings created",
		zap.Int64s("booking_ids", result.BookingIDs),
		zap.Int64("student_id", draft.StudentID),
		zap.Int64("teacher_id", draft.TeacherID),
		zap.String("subject", subject.Name),
		zap.String("status", string(status)),
		zap.String("payment_method", string(kind)),
		zap.String("amount", total.StringFixed(2)),
	)

	payload := map[string]any{
		"subject":  subject.Name,
		"status":   string(status),
		"amount":   total.StringFixed(2),
		"currency": walletCurrency,
	}
	if payment.ActionURL != "" {
		payload["action_url"] = payment.ActionURL
	}

	s.dispatcher.Send(ctx, model.Event{
		Type:       model.EventBookingCreated,
		Recipients: []int64{draft.StudentID, draft.TeacherID},
		BookingIDs: result.BookingIDs,
		Payload:    payload,
	})

	return result, nil
}

// compensate возвращает внешний платёж, если бронирования не сохранились.
// Выполняется даже если запрос уже отменён
func (s *BookingService) compensate(ctx context.Context, studentID int64, payment *model.PaymentResult, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := s.payments.Reverse(ctx, studentID, payment, cause); err != nil {
		s.logger.Error("Failed to reverse payment after booking failure",
			zap.Int64("student_id", studentID),
			zap.String("reference", payment.Reference),
			zap.NamedError("cause", cause),
			zap.Error(err))
	}
}

// bookingFailure переводит ошибку сохранения бронирований в ошибку движка
func bookingFailure(err error) error {
	if errors.Is(err, repository.ErrSlotTaken) {
		return newError(ErrSlotUnavailable, "the selected slot has just been booked, your payment was not taken", err)
	}
	if CodeOf(err) != "" {
		return err
	}
	return newError(ErrPersistenceFailure, "booking could not be saved, your payment was not taken", err)
}

type transition struct {
	bookingID int64
	actor     model.Actor
	from      []model.BookingStatus
	to        model.BookingStatus
	action    model.HistoryAction
	// authorize проверяет права до проверки статуса
	authorize func(b *model.Booking) bool
	// apply выполняет побочные действия в той же транзакции
	apply func(ctx context.Context, b *model.Booking) error
}

func (s *BookingService) transition(ctx context.Context, t transition) (*model.Booking, error) {
	var booking *model.Booking
	err := s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		b, err := s.stores.Bookings.GetByID(ctx, t.bookingID)
		if err != nil {
			return err
		}
		if b == nil {
			return ErrNotFound
		}

		if t.authorize != nil && !t.authorize(b) {
			return ErrUnauthorized
		}

		if !statusIn(b.Status, t.from) {
			return newError(ErrInvalidStateTransition, fmt.Sprintf("booking is %s", b.Status), nil)
		}

		prev := model.SnapshotOf(b)
		b.Status = t.to

		if t.apply != nil {
			if err := t.apply(ctx, b); err != nil {
				return err
			}
		}

		if err := s.stores.Bookings.Update(ctx, b, t.from); err != nil {
			if errors.Is(err, repository.ErrStaleState) {
				return newError(ErrInvalidStateTransition, "booking was changed concurrently", err)
			}
			return err
		}

		booking = b
		return appendHistory(ctx, s.stores.History, b.ID, t.action, t.actor, prev, model.SnapshotOf(b))
	})
	if err != nil {
		return nil, persistenceError(err)
	}

	s.logger.Info("Booking status changed",
		zap.Int64("booking_id", booking.ID),
		zap.String("status", string(booking.Status)),
		zap.Int64("actor_id", t.actor.UserID))

	return booking, nil
}

// Approve одобряет ожидающее бронирование
func (s *BookingService) Approve(ctx context.Context, bookingID, teacherID int64, actor model.Actor) (*model.Booking, error) {
	b, err := s.transition(ctx, transition{
		bookingID: bookingID,
		actor:     actorOr(actor, teacherID),
		from:      []model.BookingStatus{model.BookingStatusPending},
		to:        model.BookingStatusApproved,
		action:    model.HistoryApproved,
		authorize: func(b *model.Booking) bool { return b.TeacherID == teacherID },
		apply: func(_ context.Context, b *model.Booking) error {
			now := s.opts.now()
			b.ApprovedBy = &teacherID
			b.ApprovedAt = &now
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, model.EventBookingApproved, b, nil)
	return b, nil
}

// Confirm подтверждает одобренное бронирование к проведению
func (s *BookingService) Confirm(ctx context.Context, bookingID, teacherID int64, actor model.Actor) (*model.Booking, error) {
	b, err := s.transition(ctx, transition{
		bookingID: bookingID,
		actor:     actorOr(actor, teacherID),
		from:      []model.BookingStatus{model.BookingStatusApproved},
		to:        model.BookingStatusConfirmed,
		action:    model.HistoryConfirmed,
		authorize: func(b *model.Booking) bool { return b.TeacherID == teacherID },
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, model.EventBookingConfirmed, b, nil)
	return b, nil
}

// Complete отмечает занятие проведённым
func (s *BookingService) Complete(ctx context.Context, bookingID, teacherID int64, actor model.Actor) (*model.Booking, error) {
	b, err := s.transition(ctx, transition{
		bookingID: bookingID,
		actor:     actorOr(actor, teacherID),
		from:      []model.BookingStatus{model.BookingStatusConfirmed},
		to:        model.BookingStatusCompleted,
		action:    model.HistoryCompleted,
		authorize: func(b *model.Booking) bool { return b.TeacherID == teacherID },
		apply: func(ctx context.Context, b *model.Booking) error {
			return s.stores.Sessions.UpdateStatus(ctx, b.ID, model.SessionStatusCompleted)
		},
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, model.EventBookingCompleted, b, nil)
	return b, nil
}

// Cancel отменяет бронирование студентом или учителем, пока до начала занятия
// больше CancellationLeadTime. Оплаченная сумма возвращается на кошелёк студента
func (s *BookingService) Cancel(ctx context.Context, bookingID, actorID int64, reason string, actor model.Actor) (*model.Booking, error) {
	var refunded decimal.Decimal
	b, err := s.transition(ctx, transition{
		bookingID: bookingID,
		actor:     actorOr(actor, actorID),
		from:      model.ActiveBookingStatuses,
		to:        model.BookingStatusCancelled,
		action:    model.HistoryCancelled,
		authorize: func(b *model.Booking) bool { return b.IsParticipant(actorID) },
		apply: func(ctx context.Context, b *model.Booking) error {
			now := s.opts.now()
			if !now.Before(b.StartsAt().Add(-s.opts.CancellationLeadTime)) {
				return newError(ErrCancellationWindowClosed, fmt.Sprintf(
					"bookings can only be cancelled more than %s before the start", s.opts.CancellationLeadTime), nil)
			}

			b.CancelledBy = &actorID
			b.CancelledAt = &now
			b.CancellationReason = reason

			if err := s.stores.Sessions.UpdateStatus(ctx, b.ID, model.SessionStatusInvalidated); err != nil {
				return err
			}

			var err error
			refunded, err = s.refundCancelled(ctx, b)
			return err
		},
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, model.EventBookingCancelled, b, map[string]any{
		"reason":   reason,
		"refunded": refunded.StringFixed(2),
	})
	return b, nil
}

// refundCancelled возвращает на кошелёк оплату отменённого бронирования.
// Если платёж ещё не подтверждён, возврат сделает ConfirmPayment, а когда
// отменены все бронирования платежа, его записи помечаются failed
func (s *BookingService) refundCancelled(ctx context.Context, b *model.Booking) (decimal.Decimal, error) {
	if !b.Amount.IsPositive() || b.PaymentReference == "" {
		return decimal.Zero, nil
	}

	entries, err := s.wallets.PaymentEntries(ctx, b.PaymentReference)
	if err != nil {
		return decimal.Zero, err
	}

	switch paymentStatus(entries) {
	case model.TransactionStatusCompleted:
		_, err := s.wallets.Post(ctx, LedgerEntry{
			UserID:      b.StudentID,
			Direction:   model.DirectionCredit,
			Amount:      b.Amount,
			Description: fmt.Sprintf("%s booking %s cancelled", model.RefundPrefix, b.Reference),
			Reference:   b.PaymentReference,
		})
		if err != nil {
			return decimal.Zero, err
		}
		return b.Amount, nil
	case model.TransactionStatusPending:
		siblings, err := s.stores.Bookings.GetByPaymentReference(ctx, b.PaymentReference)
		if err != nil {
			return decimal.Zero, err
		}
		for _, other := range siblings {
			if other.ID != b.ID && other.Status != model.BookingStatusCancelled {
				return decimal.Zero, nil
			}
		}
		_, err = s.wallets.Fail(ctx, b.StudentID, b.PaymentReference)
		return decimal.Zero, err
	default:
		return decimal.Zero, nil
	}
}

// errPaymentSettled в транзакции не осталось pending записей платежа
var errPaymentSettled = errors.New("payment already settled")

// ConfirmPayment получает деньги по отложенному платежу и одобряет его бронирования.
// Если провайдер отказал, записи платежа помечаются failed, а бронирования отменяются
func (s *BookingService) ConfirmPayment(ctx context.Context, reference string, actor model.Actor) ([]*model.Booking, error) {
	if !actor.Operator {
		return nil, newError(ErrUnauthorized, "only an operator can confirm payments", nil)
	}

	bookings, err := s.stores.Bookings.GetByPaymentReference(ctx, reference)
	if err != nil {
		return nil, persistenceError(err)
	}
	if len(bookings) == 0 {
		return nil, newError(ErrNotFound, "payment not found", nil)
	}

	kind := bookings[0].PaymentMethod
	studentID := bookings[0].StudentID
	if actor.UserID == studentID {
		return nil, newError(ErrUnauthorized, "a payment cannot be confirmed by its payer", nil)
	}
	if !IsExternal(kind) {
		return nil, newError(ErrInvalidStateTransition, "wallet payments are settled immediately", nil)
	}

	if s.guard != nil {
		release, ok, err := s.guard.Acquire(ctx, "payment:"+reference)
		if err != nil {
			return nil, newError(ErrPersistenceFailure, "request guard is unavailable", err)
		}
		if !ok {
			return nil, ErrDuplicateRequest
		}
		defer release()
	}

	return s.confirmPayment(ctx, reference, kind, studentID, bookings[0].TeacherID, actor)
}

func (s *BookingService) confirmPayment(ctx context.Context, reference string, kind model.MethodKind, studentID, teacherID int64, actor model.Actor) ([]*model.Booking, error) {
	entries, err := s.wallets.PaymentEntries(ctx, reference)
	if err != nil {
		return nil, err
	}
	if paymentStatus(entries) != model.TransactionStatusPending {
		return nil, newError(ErrInvalidStateTransition, "payment is not awaiting confirmation", nil)
	}

	captured, captureErr := s.payments.Capture(ctx, kind, reference)
	if captureErr != nil {
		if captured == nil {
			return nil, captureErr
		}
		if err := s.failPayment(ctx, studentID, reference, actor); err != nil {
			s.logger.Error("Failed to cancel bookings of a declined payment",
				zap.String("reference", reference),
				zap.Error(err))
		}
		return nil, captureErr
	}

	var updated []*model.Booking
	err = s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		updated = updated[:0]
		settled, err := s.wallets.Settle(ctx, studentID, reference)
		if err != nil {
			return err
		}
		// платёж уже проведён параллельным подтверждением
		if len(settled) == 0 {
			return errPaymentSettled
		}

		bookings, err := s.stores.Bookings.GetByPaymentReference(ctx, reference)
		if err != nil {
			return err
		}

		now := s.opts.now()
		for _, b := range bookings {
			switch b.Status {
			case model.BookingStatusPending:
				prev := model.SnapshotOf(b)
				b.Status = model.BookingStatusApproved
				b.ApprovedAt = &now
				if err := s.stores.Bookings.Update(ctx, b, []model.BookingStatus{model.BookingStatusPending}); err != nil {
					if errors.Is(err, repository.ErrStaleState) {
						return newError(ErrInvalidStateTransition, "booking was changed concurrently", err)
					}
					return err
				}
				if err := appendHistory(ctx, s.stores.History, b.ID, model.HistoryPaid, actor, prev, model.SnapshotOf(b)); err != nil {
					return err
				}
			case model.BookingStatusCancelled:
				// отменено до поступления денег
				if _, err := s.wallets.Post(ctx, LedgerEntry{
					UserID:      b.StudentID,
					Direction:   model.DirectionCredit,
					Amount:      b.Amount,
					Description: fmt.Sprintf("%s booking %s cancelled", model.RefundPrefix, b.Reference),
					Reference:   reference,
				}); err != nil {
					return err
				}
			}
			updated = append(updated, b)
		}
		return nil
	})
	if errors.Is(err, errPaymentSettled) {
		return nil, newError(ErrInvalidStateTransition, "payment is not awaiting confirmation", err)
	}
	if err != nil {
		s.compensate(ctx, studentID, &model.PaymentResult{
			Success:              true,
			Reference:            reference,
			Method:               kind,
			Amount:               decimal.Zero,
			GatewayTransactionID: captured.TransactionID,
		}, err)
		return nil, bookingFailure(err)
	}

	s.logger.Info("Payment confirmed",
		zap.String("reference", reference),
		zap.Int64("student_id", studentID),
		zap.Int64s("booking_ids", bookingIDs(updated)))

	s.dispatcher.Send(ctx, model.Event{
		Type:       model.EventPaymentConfirmed,
		Recipients: []int64{studentID, teacherID},
		BookingIDs: bookingIDs(updated),
		Payload:    map[string]any{"reference": reference},
	})

	return updated, nil
}

func (s *BookingService) failPayment(ctx context.Context, studentID int64, reference string, actor model.Actor) error {
	ctx = context.WithoutCancel(ctx)

	var cancelled []*model.Booking
	err := s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.wallets.Fail(ctx, studentID, reference); err != nil {
			return err
		}

		bookings, err := s.stores.Bookings.GetByPaymentReference(ctx, reference)
		if err != nil {
			return err
		}

		now := s.opts.now()
		for _, b := range bookings {
			if !b.Status.IsActive() {
				continue
			}
			prev := model.SnapshotOf(b)
			from := []model.BookingStatus{b.Status}
			b.Status = model.BookingStatusCancelled
			b.CancelledAt = &now
			b.CancellationReason = "payment failed"
			if err := s.stores.Bookings.Update(ctx, b, from); err != nil {
				return err
			}
			if err := s.stores.Sessions.UpdateStatus(ctx, b.ID, model.SessionStatusInvalidated); err != nil {
				return err
			}
			if err := appendHistory(ctx, s.stores.History, b.ID, model.HistoryCancelled, actor, prev, model.SnapshotOf(b)); err != nil {
				return err
			}
			cancelled = append(cancelled, b)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Warn("Payment declined, bookings cancelled",
		zap.String("reference", reference),
		zap.Int64s("booking_ids", bookingIDs(cancelled)))

	s.dispatcher.Send(ctx, model.Event{
		Type:       model.EventPaymentFailed,
		Recipients: []int64{studentID},
		BookingIDs: bookingIDs(cancelled),
		Payload:    map[string]any{"reference": reference},
	})

	return nil
}

// GetBooking возвращает бронирование участнику
func (s *BookingService) GetBooking(ctx context.Context, bookingID, userID int64) (*model.Booking, error) {
	b, err := s.stores.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, persistenceError(err)
	}
	if b == nil {
		return nil, ErrNotFound
	}
	if !b.IsParticipant(userID) {
		return nil, ErrUnauthorized
	}
	return b, nil
}

// History возвращает журнал изменений бронирования
func (s *BookingService) History(ctx context.Context, bookingID, userID int64) ([]*model.BookingHistory, error) {
	if _, err := s.GetBooking(ctx, bookingID, userID); err != nil {
		return nil, err
	}
	entries, err := s.stores.History.ListByBookingID(ctx, bookingID)
	if err != nil {
		return nil, persistenceError(err)
	}
	return entries, nil
}

func (s *BookingService) notify(ctx context.Context, eventType model.EventType, b *model.Booking, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["status"] = string(b.Status)
	payload["date"] = b.BookingDate.Format(time.DateOnly)
	payload["start_time"] = b.StartTime.String()

	s.dispatcher.Send(ctx, model.Event{
		Type:       eventType,
		Recipients: []int64{b.StudentID, b.TeacherID},
		BookingIDs: []int64{b.ID},
		Payload:    payload,
	})
}

func statusIn(status model.BookingStatus, set []model.BookingStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}
