package model

import (
	"encoding/json"
	"time"
)

type HistoryAction string

const (
	HistoryCreated     HistoryAction = "created"
	HistoryApproved    HistoryAction = "approved"
	HistoryConfirmed   HistoryAction = "confirmed"
	HistoryCompleted   HistoryAction = "completed"
	HistoryCancelled   HistoryAction = "cancelled"
	HistoryRescheduled HistoryAction = "rescheduled"
	HistoryRebooked    HistoryAction = "rebooked"
	HistoryPaid        HistoryAction = "payment_confirmed"
)

// BookingHistory запись аудита, только добавление
type BookingHistory struct {
	ID           int64           `json:"id"`
	BookingID    int64           `json:"booking_id"`
	Action       HistoryAction   `json:"action"`
	ActorID      int64           `json:"actor_id"`
	PreviousData json.RawMessage `json:"previous_data"`
	NewData      json.RawMessage `json:"new_data"`
	IPAddress    string          `json:"ip_address"`
	UserAgent    string          `json:"user_agent"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Actor кто выполняет операцию и откуда
type Actor struct {
	UserID    int64  `json:"user_id"`
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	// Operator сотрудник платформы (сверка платежей, ручные начисления)
	Operator bool `json:"operator"`
}

// Snapshot снимок изменяемых полей бронирования для истории
type Snapshot struct {
	Status          BookingStatus `json:"status"`
	BookingDate     string        `json:"booking_date"`
	StartTime       string        `json:"start_time"`
	EndTime         string        `json:"end_time"`
	DurationMinutes int           `json:"duration_minutes"`
}

// SnapshotOf снимает состояние бронирования
func SnapshotOf(b *Booking) Snapshot {
	return Snapshot{
		Status:          b.Status,
		BookingDate:     b.BookingDate.Format(time.DateOnly),
		StartTime:       b.StartTime.String(),
		EndTime:         b.EndTime.String(),
		DurationMinutes: b.DurationMinutes,
	}
}
