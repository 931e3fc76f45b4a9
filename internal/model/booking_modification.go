package model

import "time"

type ModificationKind string

const (
	ModificationReschedule ModificationKind = "reschedule"
	ModificationRebook     ModificationKind = "rebook"
)

type ModificationStatus string

const (
	ModificationStatusPending   ModificationStatus = "pending"
	ModificationStatusApproved  ModificationStatus = "approved"
	ModificationStatusRejected  ModificationStatus = "rejected"
	ModificationStatusCancelled ModificationStatus = "cancelled"
)

// BookingModification предложение перенести занятие или записаться повторно
type BookingModification struct {
	ID                 int64              `json:"id"`
	Kind               ModificationKind   `json:"kind"`
	BookingID          int64              `json:"booking_id"`
	TeacherID          int64              `json:"teacher_id"`
	StudentID          int64              `json:"student_id"`
	NewDate            time.Time          `json:"new_date"`
	NewStartTime       TimeOfDay          `json:"new_start_time"`
	NewEndTime         TimeOfDay          `json:"new_end_time"`
	NewDurationMinutes int                `json:"new_duration_minutes"`
	Timezone           string             `json:"timezone"`
	Reason             string             `json:"reason"`
	Status             ModificationStatus `json:"status"`
	ApprovedBy         *int64             `json:"approved_by"`
	RespondedAt        *time.Time         `json:"responded_at"`
	ResponseNote       string             `json:"response_note"`
	ResultBookingID    *int64             `json:"result_booking_id"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// IsPending checks if modification awaits a decision
func (m *BookingModification) IsPending() bool {
	return m.Status == ModificationStatusPending
}

// ProposedTiming returns the requested timing
func (m *BookingModification) ProposedTiming() Timing {
	return Timing{
		Date:            m.NewDate,
		StartTime:       m.NewStartTime,
		EndTime:         m.NewEndTime,
		DurationMinutes: m.NewDurationMinutes,
		Timezone:        m.Timezone,
	}
}
