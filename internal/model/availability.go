package model

import "time"

// TeacherAvailability повторяющийся еженедельный слот учителя
type TeacherAvailability struct {
	ID        int64     `json:"id"`
	TeacherID int64     `json:"teacher_id"`
	DayOfWeek int       `json:"day_of_week"` // 0 = Sunday, 6 = Saturday
	StartTime TimeOfDay `json:"start_time"`
	EndTime   TimeOfDay `json:"end_time"`
	IsActive  bool      `json:"is_active"`
	Timezone  string    `json:"timezone"`
	CreatedAt time.Time `json:"created_at"`
}

// Timing конкретное время занятия в календарный день
type Timing struct {
	Date            time.Time `json:"date"`
	StartTime       TimeOfDay `json:"start_time"`
	EndTime         TimeOfDay `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Timezone        string    `json:"timezone"`
}

// StartsAt момент начала занятия
func (t Timing) StartsAt() time.Time {
	return t.StartTime.On(t.Date, LoadLocation(t.Timezone))
}

// EndsAt момент окончания занятия
func (t Timing) EndsAt() time.Time {
	return t.EndTime.On(t.Date, LoadLocation(t.Timezone))
}
