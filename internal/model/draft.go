package model

import (
	"time"

	"github.com/google/uuid"
)

// BookingDraft данные бронирования, собранные на страницах выбора.
// Передаётся вызывающим явно, движок не хранит промежуточного состояния
type BookingDraft struct {
	IdempotencyKey    string        `json:"idempotency_key" validate:"omitempty,max=128"`
	StudentID         int64         `json:"student_id" validate:"required,gt=0"`
	TeacherID         int64         `json:"teacher_id" validate:"required,gt=0,nefield=StudentID"`
	SubjectTemplateID int64         `json:"subject_template_id" validate:"required,gt=0"`
	Dates             []time.Time   `json:"dates" validate:"required,min=1,max=31"`
	AvailabilityIDs   []int64       `json:"availability_ids" validate:"required,min=1,dive,gt=0"`
	Notes             string        `json:"notes" validate:"max=2000"`
	Currency          string        `json:"currency" validate:"omitempty,oneof=NGN USD"`
	PaymentMethod     PaymentMethod `json:"-" validate:"required"`
	Actor             Actor         `json:"-"`
}

// BookingResult результат создания бронирований
type BookingResult struct {
	BookingIDs []int64        `json:"booking_ids"`
	References []uuid.UUID    `json:"references"`
	Status     BookingStatus  `json:"status"`
	Payment    *PaymentResult `json:"payment"`
	SkipDates  []time.Time    `json:"skipped_dates,omitempty"`
}

// ModificationRequest запрос на перенос или повторную запись
type ModificationRequest struct {
	BookingID       int64     `json:"booking_id" validate:"required,gt=0"`
	StudentID       int64     `json:"student_id" validate:"required,gt=0"`
	NewDate         time.Time `json:"new_date" validate:"required"`
	AvailabilityIDs []int64   `json:"availability_ids" validate:"required,min=1,dive,gt=0"`
	Reason          string    `json:"reason" validate:"max=1000"`
	Actor           Actor     `json:"-"`
}
