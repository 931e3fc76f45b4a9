package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"   // Ожидает одобрения учителя или оплаты
	BookingStatusApproved  BookingStatus = "approved"  // Одобрено (оплата подтверждена)
	BookingStatusConfirmed BookingStatus = "confirmed" // Подтверждено к проведению
	BookingStatusCompleted BookingStatus = "completed" // Завершено
	BookingStatusCancelled BookingStatus = "cancelled" // Отменено
)

// ActiveBookingStatuses статусы, из которых бронирование можно отменить или перенести
var ActiveBookingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusApproved,
	BookingStatusConfirmed,
}

// IsTerminal проверяет является ли статус конечным
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

// IsActive проверяет что бронирование ещё не завершено и не отменено
func (s BookingStatus) IsActive() bool {
	for _, st := range ActiveBookingStatuses {
		if s == st {
			return true
		}
	}
	return false
}

type Booking struct {
	ID                 int64           `json:"id"`
	Reference          uuid.UUID       `json:"reference"`
	StudentID          int64           `json:"student_id"`
	TeacherID          int64           `json:"teacher_id"`
	SubjectID          int64           `json:"subject_id"`
	BookingDate        time.Time       `json:"booking_date"`
	StartTime          TimeOfDay       `json:"start_time"`
	EndTime            TimeOfDay       `json:"end_time"`
	DurationMinutes    int             `json:"duration_minutes"`
	Timezone           string          `json:"timezone"`
	Status             BookingStatus   `json:"status"`
	Notes              string          `json:"notes"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	PaymentMethod      MethodKind      `json:"payment_method"`
	PaymentReference   string          `json:"payment_reference"`
	CreatedBy          int64           `json:"created_by"`
	ApprovedBy         *int64          `json:"approved_by"`
	ApprovedAt         *time.Time      `json:"approved_at"`
	RescheduledBy      *int64          `json:"rescheduled_by"`
	RescheduledAt      *time.Time      `json:"rescheduled_at"`
	RescheduleReason   string          `json:"reschedule_reason"`
	CancelledBy        *int64          `json:"cancelled_by"`
	CancelledAt        *time.Time      `json:"cancelled_at"`
	CancellationReason string          `json:"cancellation_reason"`
	RebookedFromID     *int64          `json:"rebooked_from_id"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Timing возвращает текущее время занятия
func (b *Booking) Timing() Timing {
	return Timing{
		Date:            b.BookingDate,
		StartTime:       b.StartTime,
		EndTime:         b.EndTime,
		DurationMinutes: b.DurationMinutes,
		Timezone:        b.Timezone,
	}
}

// ApplyTiming переносит занятие на новое время
func (b *Booking) ApplyTiming(t Timing) {
	b.BookingDate = DateOnly(t.Date)
	b.StartTime = t.StartTime
	b.EndTime = t.EndTime
	b.DurationMinutes = t.DurationMinutes
	if t.Timezone != "" {
		b.Timezone = t.Timezone
	}
}

// StartsAt момент начала занятия в часовом поясе бронирования
func (b *Booking) StartsAt() time.Time {
	return b.Timing().StartsAt()
}

// IsParticipant проверяет что пользователь является студентом или учителем бронирования
func (b *Booking) IsParticipant(userID int64) bool {
	return b.StudentID == userID || b.TeacherID == userID
}
