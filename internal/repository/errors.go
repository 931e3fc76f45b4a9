package repository

import (
	"errors"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository/base"
	"github.com/jackc/pgx/v5/pgtype"
)

var (
	// ErrSlotTaken слот учителя на эту дату уже занят активным бронированием
	ErrSlotTaken = errors.New("teacher slot already booked")
	// ErrModificationPending по бронированию уже есть ожидающий запрос
	ErrModificationPending = errors.New("modification already pending")
	// ErrStaleState запись изменилась с момента чтения (не совпал ожидаемый статус)
	ErrStaleState = errors.New("record state changed concurrently")
	// ErrSubjectTemplateNotFound нет шаблона предмета или профиля учителя
	ErrSubjectTemplateNotFound = errors.New("subject template or teacher profile not found")
)

const (
	constraintBookingOverlap      = "bookings_teacher_no_overlap"
	constraintBookingSlot         = "bookings_teacher_slot_active_key"
	constraintPendingModification = "booking_modifications_one_pending_key"
)

var constraintErrors = map[string]error{
	constraintBookingOverlap:      ErrSlotTaken,
	constraintBookingSlot:         ErrSlotTaken,
	constraintPendingModification: ErrModificationPending,
}

// constraintError переводит нарушение известного ограничения в ошибку репозитория
func constraintError(err error) error {
	name, ok := base.ConstraintViolation(err)
	if !ok {
		return nil
	}
	return constraintErrors[name]
}

const microsPerMinute = int64(60_000_000)

func toPgTime(t model.TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * microsPerMinute, Valid: true}
}

func fromPgTime(t pgtype.Time) model.TimeOfDay {
	return model.TimeOfDay(t.Microseconds / microsPerMinute)
}
