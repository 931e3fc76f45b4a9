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
	"go.uber.org/zap"
)

// ModificationService ведёт запросы на перенос и повторную запись.
// Бронирование меняется только при одобрении учителем
type ModificationService struct {
	stores     Stores
	resolver   *AvailabilityResolver
	wallets    *WalletService
	payments   *PaymentService
	dispatcher *Dispatcher
	validate   *validator.Validate
	opts       Options
	logger     *zap.Logger
}

func NewModificationService(
	stores Stores,
	resolver *AvailabilityResolver,
	wallets *WalletService,
	payments *PaymentService,
	dispatcher *Dispatcher,
	opts Options,
	logger *zap.Logger,
) *ModificationService {
	return &ModificationService{
		stores:     stores,
		resolver:   resolver,
		wallets:    wallets,
		payments:   payments,
		dispatcher: dispatcher,
		validate:   validator.New(),
		opts:       opts,
		logger:     logger,
	}
}

// CreateRescheduleRequest предлагает перенести активное бронирование на другое время
func (s *ModificationService) CreateRescheduleRequest(ctx context.Context, req model.ModificationRequest) (*model.BookingModification, error) {
	return s.create(ctx, req, model.ModificationReschedule)
}

// CreateRebookRequest предлагает новое занятие по мотивам прошлого бронирования
func (s *ModificationService) CreateRebookRequest(ctx context.Context, req model.ModificationRequest) (*model.BookingModification, error) {
	return s.create(ctx, req, model.ModificationRebook)
}

func (s *ModificationService) create(ctx context.Context, req model.ModificationRequest, kind model.ModificationKind) (*model.BookingModification, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, newError(ErrInvalidRequest, err.Error(), err)
	}

	booking, err := s.stores.Bookings.GetByID(ctx, req.BookingID)
	if err != nil {
		return nil, persistenceError(err)
	}
	if booking == nil {
		return nil, ErrNotFound
	}

	if booking.StudentID != req.StudentID {
		return nil, ErrUnauthorized
	}

	switch kind {
	case model.ModificationReschedule:
		if !booking.Status.IsActive() {
			return nil, newError(ErrInvalidStateTransition, fmt.Sprintf("booking is %s and cannot be rescheduled", booking.Status), nil)
		}
	case model.ModificationRebook:
		if booking.Status == model.BookingStatusCancelled {
			return nil, newError(ErrInvalidStateTransition, "cancelled bookings cannot be rebooked", nil)
		}
	}

	pending, err := s.stores.Modifications.GetPendingByBookingID(ctx, booking.ID)
	if err != nil {
		return nil, persistenceError(err)
	}
	if pending != nil {
		return nil, ErrModificationAlreadyPending
	}

	timings, _, err := s.resolver.Resolve(ctx, booking.TeacherID, []time.Time{req.NewDate}, req.AvailabilityIDs, ResolveReschedule)
	if err != nil {
		return nil, err
	}
	timing := timings[0]

	m := &model.BookingModification{
		Kind:               kind,
		BookingID:          booking.ID,
		TeacherID:          booking.TeacherID,
		StudentID:          booking.StudentID,
		NewDate:            timing.Date,
		NewStartTime:       timing.StartTime,
		NewEndTime:         timing.EndTime,
		NewDurationMinutes: timing.DurationMinutes,
		Timezone:           timing.Timezone,
		Reason:             req.Reason,
		Status:             model.ModificationStatusPending,
	}

	if err := s.stores.Modifications.Create(ctx, m); err != nil {
		if errors.Is(err, repository.ErrModificationPending) {
			return nil, ErrModificationAlreadyPending
		}
		return nil, persistenceError(err)
	}

	s.logger.Info("Booking modification requested",
		zap.Int64("modification_id", m.ID),
		zap.String("kind", string(kind)),
		zap.Int64("booking_id", booking.ID),
		zap.Int64("student_id", req.StudentID),
		zap.String("new_date", m.NewDate.Format(time.DateOnly)),
		zap.String("new_start", m.NewStartTime.String()))

	s.notify(ctx, model.EventModificationRequested, m, m.TeacherID)

	return m, nil
}

// ApproveModification применяет запрос: переносит бронирование или создаёт новое,
// оплаченное с кошелька студента. Всё в одной транзакции
func (s *ModificationService) ApproveModification(ctx context.Context, modificationID, approverID int64, actor model.Actor) (*model.BookingModification, error) {
	var mod *model.BookingModification
	err := s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		m, booking, err := s.load(ctx, modificationID)
		if err != nil {
			return err
		}

		if booking.TeacherID != approverID {
			return ErrUnauthorized
		}
		if !m.IsPending() {
			return newError(ErrInvalidStateTransition, fmt.Sprintf("modification is %s", m.Status), nil)
		}

		now := s.opts.now()
		timing := m.ProposedTiming()
		if !timing.StartsAt().After(now) {
			return newError(ErrInvalidStateTransition, "proposed time has already passed", nil)
		}

		switch m.Kind {
		case model.ModificationReschedule:
			err = s.reschedule(ctx, m, booking, approverID, actor, now)
		case model.ModificationRebook:
			err = s.rebook(ctx, m, booking, approverID, actor, now)
		default:
			err = newError(ErrInvalidRequest, fmt.Sprintf("unknown modification kind %q", m.Kind), nil)
		}
		if err != nil {
			return err
		}

		m.Status = model.ModificationStatusApproved
		m.ApprovedBy = &approverID
		m.RespondedAt = &now
		if err := s.resolve(ctx, m); err != nil {
			return err
		}

		mod = m
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			return nil, newError(ErrSlotUnavailable, "the proposed slot has already been booked", err)
		}
		return nil, persistenceError(err)
	}

	s.notify(ctx, model.EventModificationApproved, mod, mod.StudentID)

	return mod, nil
}

func (s *ModificationService) reschedule(ctx context.Context, m *model.BookingModification, booking *model.Booking, approverID int64, actor model.Actor, now time.Time) error {
	if !booking.Status.IsActive() {
		return newError(ErrInvalidStateTransition, fmt.Sprintf("booking is %s and cannot be rescheduled", booking.Status), nil)
	}

	prev := model.SnapshotOf(booking)
	timing := m.ProposedTiming()

	booking.ApplyTiming(timing)
	booking.RescheduledBy = &m.StudentID
	booking.RescheduledAt = &now
	booking.RescheduleReason = m.Reason

	if err := s.stores.Bookings.Update(ctx, booking, model.ActiveBookingStatuses); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return newError(ErrInvalidStateTransition, "booking was changed concurrently", err)
		}
		return err
	}

	if err := s.stores.Sessions.Reschedule(ctx, booking.ID, timing.StartsAt(), timing.EndsAt()); err != nil {
		return err
	}

	if err := appendHistory(ctx, s.stores.History, booking.ID, model.HistoryRescheduled, actorOr(actor, approverID), prev, model.SnapshotOf(booking)); err != nil {
		return err
	}

	s.logger.Info("Booking rescheduled",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("modification_id", m.ID),
		zap.String("date", booking.BookingDate.Format(time.DateOnly)),
		zap.String("start_time", booking.StartTime.String()))

	return nil
}

func (s *ModificationService) rebook(ctx context.Context, m *model.BookingModification, original *model.Booking, approverID int64, actor model.Actor, now time.Time) error {
	if original.Status == model.BookingStatusCancelled {
		return newError(ErrInvalidStateTransition, "cancelled bookings cannot be rebooked", nil)
	}

	subject, err := s.stores.Subjects.GetByID(ctx, original.SubjectID)
	if err != nil {
		return err
	}
	if subject == nil {
		return newError(ErrNotFound, "subject of the original booking not found", nil)
	}

	timing := m.ProposedTiming()
	amount, err := s.payments.Convert(subject.PriceFor(timing.DurationMinutes), subject.Currency, s.wallets.Currency())
	if err != nil {
		return err
	}

	b := &model.Booking{
		Reference:      uuid.New(),
		StudentID:      original.StudentID,
		TeacherID:      original.TeacherID,
		SubjectID:      original.SubjectID,
		Status:         model.BookingStatusApproved,
		Notes:          original.Notes,
		Amount:         amount,
		Currency:       s.wallets.Currency(),
		PaymentMethod:  model.MethodWallet,
		CreatedBy:      m.StudentID,
		ApprovedBy:     &approverID,
		ApprovedAt:     &now,
		RebookedFromID: &original.ID,
	}
	b.ApplyTiming(timing)

	if amount.IsPositive() {
		b.PaymentReference = uuid.NewString()
		if _, err := s.wallets.Post(ctx, LedgerEntry{
			UserID:      b.StudentID,
			Direction:   model.DirectionDebit,
			Amount:      amount,
			Description: fmt.Sprintf("rebook: %s", subject.Name),
			Reference:   b.PaymentReference,
		}); err != nil {
			return err
		}
	}

	if err := s.stores.Bookings.Create(ctx, b); err != nil {
		return err
	}

	if err := s.stores.Sessions.Create(ctx, model.NewTeachingSession(b)); err != nil {
		return err
	}

	who := actorOr(actor, approverID)
	if err := appendHistory(ctx, s.stores.History, b.ID, model.HistoryCreated, who, nil, model.SnapshotOf(b)); err != nil {
		return err
	}
	if err := appendHistory(ctx, s.stores.History, original.ID, model.HistoryRebooked, who, model.SnapshotOf(original), model.SnapshotOf(b)); err != nil {
		return err
	}

	m.ResultBookingID = &b.ID

	s.logger.Info("Booking rebooked",
		zap.Int64("booking_id", b.ID),
		zap.Int64("rebooked_from_id", original.ID),
		zap.Int64("modification_id", m.ID),
		zap.String("amount", amount.StringFixed(2)))

	return nil
}

// RejectModification отклоняет запрос, бронирование не меняется
func (s *ModificationService) RejectModification(ctx context.Context, modificationID, teacherID int64, note string) (*model.BookingModification, error) {
	m, err := s.respond(ctx, modificationID, func(m *model.BookingModification) bool { return m.TeacherID == teacherID }, func(m *model.BookingModification, now time.Time) {
		m.Status = model.ModificationStatusRejected
		m.RespondedAt = &now
		m.ResponseNote = note
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, model.EventModificationRejected, m, m.StudentID)
	return m, nil
}

// CancelModification отзывает запрос студентом, пока он ожидает решения
func (s *ModificationService) CancelModification(ctx context.Context, modificationID, studentID int64) (*model.BookingModification, error) {
	m, err := s.respond(ctx, modificationID, func(m *model.BookingModification) bool { return m.StudentID == studentID }, func(m *model.BookingModification, now time.Time) {
		m.Status = model.ModificationStatusCancelled
		m.RespondedAt = &now
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, model.EventModificationCancelled, m, m.TeacherID)
	return m, nil
}

func (s *ModificationService) respond(
	ctx context.Context,
	modificationID int64,
	authorize func(m *model.BookingModification) bool,
	apply func(m *model.BookingModification, now time.Time),
) (*model.BookingModification, error) {
	m, err := s.stores.Modifications.GetByID(ctx, modificationID)
	if err != nil {
		return nil, persistenceError(err)
	}
	if m == nil {
		return nil, ErrNotFound
	}

	if !authorize(m) {
		return nil, ErrUnauthorized
	}
	if !m.IsPending() {
		return nil, newError(ErrInvalidStateTransition, fmt.Sprintf("modification is %s", m.Status), nil)
	}

	apply(m, s.opts.now())
	if err := s.resolve(ctx, m); err != nil {
		return nil, persistenceError(err)
	}

	return m, nil
}

// ExpireStale отменяет ожидающие запросы, предложенное время которых уже прошло
func (s *ModificationService) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	// дата хранится в часовом поясе слота и может опережать UTC на сутки,
	// точное время начала проверяется ниже
	mods, err := s.stores.Modifications.ListPendingBefore(ctx, model.DateOnly(now.Add(24*time.Hour)))
	if err != nil {
		return 0, persistenceError(err)
	}

	expired := 0
	for _, m := range mods {
		if m.ProposedTiming().StartsAt().After(now) {
			continue
		}

		m.Status = model.ModificationStatusCancelled
		m.RespondedAt = &now
		m.ResponseNote = "expired: proposed time has passed"
		if err := s.resolve(ctx, m); err != nil {
			if CodeOf(err) == CodeInvalidStateTransition {
				continue
			}
			return expired, persistenceError(err)
		}
		expired++

		s.notify(ctx, model.EventModificationCancelled, m, m.StudentID, m.TeacherID)
	}

	if expired > 0 {
		s.logger.Info("Stale modifications expired", zap.Int("count", expired))
	}

	return expired, nil
}

func (s *ModificationService) load(ctx context.Context, modificationID int64) (*model.BookingModification, *model.Booking, error) {
	m, err := s.stores.Modifications.GetByID(ctx, modificationID)
	if err != nil {
		return nil, nil, err
	}
	if m == nil {
		return nil, nil, ErrNotFound
	}

	booking, err := s.stores.Bookings.GetByID(ctx, m.BookingID)
	if err != nil {
		return nil, nil, err
	}
	if booking == nil {
		return nil, nil, newError(ErrNotFound, "booking of the modification not found", nil)
	}

	return m, booking, nil
}

func (s *ModificationService) resolve(ctx context.Context, m *model.BookingModification) error {
	if err := s.stores.Modifications.Resolve(ctx, m); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return newError(ErrInvalidStateTransition, "modification was resolved concurrently", err)
		}
		return err
	}
	return nil
}

func (s *ModificationService) notify(ctx context.Context, eventType model.EventType, m *model.BookingModification, recipients ...int64) {
	s.dispatcher.Send(ctx, model.Event{
		Type:           eventType,
		Recipients:     recipients,
		BookingIDs:     []int64{m.BookingID},
		ModificationID: m.ID,
		Payload: map[string]any{
			"kind":       string(m.Kind),
			"status":     string(m.Status),
			"new_date":   m.NewDate.Format(time.DateOnly),
			"start_time": m.NewStartTime.String(),
			"end_time":   m.NewEndTime.String(),
		},
	})
}

// actorOr подставляет userID, если вызывающий не передал автора действия
func actorOr(actor model.Actor, userID int64) model.Actor {
	if actor.UserID == 0 {
		actor.UserID = userID
	}
	return actor
}
