package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Subject предмет учителя, создаётся из шаблона при первом бронировании.
// Уникален по паре (teacher_profile_id, subject_template_id)
type Subject struct {
	ID                int64           `json:"id"`
	TeacherProfileID  int64           `json:"teacher_profile_id"`
	TeacherID         int64           `json:"teacher_id"`
	SubjectTemplateID int64           `json:"subject_template_id"`
	Name              string          `json:"name"`
	HourlyRate        decimal.Decimal `json:"hourly_rate"`
	Currency          string          `json:"currency"`
	CreatedAt         time.Time       `json:"created_at"`
}

// PriceFor стоимость занятия заданной длительности
func (s *Subject) PriceFor(durationMinutes int) decimal.Decimal {
	return s.HourlyRate.
		Mul(decimal.NewFromInt(int64(durationMinutes))).
		Div(decimal.NewFromInt(60)).
		Round(2)
}
