package model

import "time"

type EventType string

const (
	EventBookingCreated        EventType = "booking.created"
	EventBookingApproved       EventType = "booking.approved"
	EventBookingConfirmed      EventType = "booking.confirmed"
	EventBookingCompleted      EventType = "booking.completed"
	EventBookingCancelled      EventType = "booking.cancelled"
	EventPaymentConfirmed      EventType = "payment.confirmed"
	EventPaymentFailed         EventType = "payment.failed"
	EventModificationRequested EventType = "modification.requested"
	EventModificationApproved  EventType = "modification.approved"
	EventModificationRejected  EventType = "modification.rejected"
	EventModificationCancelled EventType = "modification.cancelled"
)

// Event уведомление о событии движка
type Event struct {
	Type           EventType      `json:"type"`
	Recipients     []int64        `json:"recipients"`
	BookingIDs     []int64        `json:"booking_ids,omitempty"`
	ModificationID int64          `json:"modification_id,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}
