package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepository хранит teaching_sessions
type SessionRepository struct {
	*base.Repository
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{Repository: base.NewRepository(pool)}
}

// Create создаёт сессию занятия
func (r *SessionRepository) Create(ctx context.Context, session *model.TeachingSession) error {
	query := `
		INSERT INTO teaching_sessions (booking_id, meeting_link, platform, scheduled_start, scheduled_end, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := r.QueryRow(
		ctx, query,
		session.BookingID,
		session.MeetingLink,
		session.Platform,
		session.ScheduledStart,
		session.ScheduledEnd,
		session.Status,
	).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create teaching session: %w", err)
	}

	return nil
}

// GetByBookingID получает сессию бронирования
func (r *SessionRepository) GetByBookingID(ctx context.Context, bookingID int64) (*model.TeachingSession, error) {
	query := `
		SELECT id, booking_id, meeting_link, platform, scheduled_start, scheduled_end,
			actual_start, actual_end, status, created_at, updated_at
		FROM teaching_sessions
		WHERE booking_id = $1
	`

	var s model.TeachingSession
	err := r.QueryRow(ctx, query, bookingID).Scan(
		&s.ID,
		&s.BookingID,
		&s.MeetingLink,
		&s.Platform,
		&s.ScheduledStart,
		&s.ScheduledEnd,
		&s.ActualStart,
		&s.ActualEnd,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get teaching session: %w", err)
	}

	return &s, nil
}

// Reschedule переносит плановое время сессии
func (r *SessionRepository) Reschedule(ctx context.Context, bookingID int64, start, end time.Time) error {
	affected, err := r.ExecAffected(ctx, `
		UPDATE teaching_sessions
		SET scheduled_start = $1, scheduled_end = $2, updated_at = NOW()
		WHERE booking_id = $3 AND status = 'scheduled'
	`, start, end, bookingID)
	if err != nil {
		return fmt.Errorf("reschedule teaching session: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("teaching session for booking %d not found", bookingID)
	}

	return nil
}

// UpdateStatus обновляет статус сессии
func (r *SessionRepository) UpdateStatus(ctx context.Context, bookingID int64, status model.SessionStatus) error {
	affected, err := r.ExecAffected(ctx, `
		UPDATE teaching_sessions
		SET status = $1, updated_at = NOW()
		WHERE booking_id = $2
	`, status, bookingID)
	if err != nil {
		return fmt.Errorf("update teaching session status: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("teaching session for booking %d not found", bookingID)
	}

	return nil
}
