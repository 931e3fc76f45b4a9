package model

import "time"

type SessionStatus string

const (
	SessionStatusScheduled   SessionStatus = "scheduled"
	SessionStatusCompleted   SessionStatus = "completed"
	SessionStatusInvalidated SessionStatus = "invalidated"
)

// TeachingSession операционная запись проведения занятия, 1:1 с Booking
type TeachingSession struct {
	ID             int64         `json:"id"`
	BookingID      int64         `json:"booking_id"`
	MeetingLink    string        `json:"meeting_link"`
	Platform       string        `json:"platform"`
	ScheduledStart time.Time     `json:"scheduled_start"`
	ScheduledEnd   time.Time     `json:"scheduled_end"`
	ActualStart    *time.Time    `json:"actual_start"`
	ActualEnd      *time.Time    `json:"actual_end"`
	Status         SessionStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// NewTeachingSession создаёт сессию под бронирование
func NewTeachingSession(b *Booking) *TeachingSession {
	t := b.Timing()
	return &TeachingSession{
		BookingID:      b.ID,
		Platform:       "online",
		ScheduledStart: t.StartsAt(),
		ScheduledEnd:   t.EndsAt(),
		Status:         SessionStatusScheduled,
	}
}
