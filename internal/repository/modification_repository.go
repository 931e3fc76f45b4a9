package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ModificationRepository хранит запросы на перенос и повторную запись
type ModificationRepository struct {
	*base.Repository
	logger *zap.Logger
}

func NewModificationRepository(pool *pgxpool.Pool, logger *zap.Logger) *ModificationRepository {
	return &ModificationRepository{
		Repository: base.NewRepository(pool),
		logger:     logger,
	}
}

const modificationColumns = `
	id, kind, booking_id, teacher_id, student_id, new_date, new_start_time, new_end_time,
	new_duration_minutes, timezone, reason, status, approved_by, responded_at, response_note,
	result_booking_id, created_at, updated_at`

func scanModification(row pgx.Row) (*model.BookingModification, error) {
	var (
		m          model.BookingModification
		start, end pgtype.Time
	)
	err := row.Scan(
		&m.ID,
		&m.Kind,
		&m.BookingID,
		&m.TeacherID,
		&m.StudentID,
		&m.NewDate,
		&start,
		&end,
		&m.NewDurationMinutes,
		&m.Timezone,
		&m.Reason,
		&m.Status,
		&m.ApprovedBy,
		&m.RespondedAt,
		&m.ResponseNote,
		&m.ResultBookingID,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.NewStartTime = fromPgTime(start)
	m.NewEndTime = fromPgTime(end)
	return &m, nil
}

// Create создаёт запрос в статусе pending.
// Частичный уникальный индекс не даёт создать второй pending по тому же бронированию
func (r *ModificationRepository) Create(ctx context.Context, m *model.BookingModification) error {
	query := `
		INSERT INTO booking_modifications (
			kind, booking_id, teacher_id, student_id, new_date, new_start_time, new_end_time,
			new_duration_minutes, timezone, reason, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`

	err := r.QueryRow(
		ctx, query,
		m.Kind,
		m.BookingID,
		m.TeacherID,
		m.StudentID,
		m.NewDate,
		toPgTime(m.NewStartTime),
		toPgTime(m.NewEndTime),
		m.NewDurationMinutes,
		m.Timezone,
		m.Reason,
		m.Status,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)

	if err != nil {
		if mapped := constraintError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("create booking modification: %w", err)
	}

	return nil
}

// GetByID получает запрос по ID
func (r *ModificationRepository) GetByID(ctx context.Context, id int64) (*model.BookingModification, error) {
	query := `SELECT ` + modificationColumns + ` FROM booking_modifications WHERE id = $1`

	m, err := scanModification(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get booking modification: %w", err)
	}

	return m, nil
}

// GetPendingByBookingID получает ожидающий запрос бронирования, если он есть
func (r *ModificationRepository) GetPendingByBookingID(ctx context.Context, bookingID int64) (*model.BookingModification, error) {
	query := `SELECT ` + modificationColumns + ` FROM booking_modifications WHERE booking_id = $1 AND status = 'pending'`

	m, err := scanModification(r.QueryRow(ctx, query, bookingID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get pending modification: %w", err)
	}

	return m, nil
}

// Resolve фиксирует решение по запросу, только если он всё ещё pending
func (r *ModificationRepository) Resolve(ctx context.Context, m *model.BookingModification) error {
	query := `
		UPDATE booking_modifications
		SET status = $1, approved_by = $2, responded_at = $3, response_note = $4,
			result_booking_id = $5, updated_at = NOW()
		WHERE id = $6 AND status = 'pending'
		RETURNING updated_at
	`

	err := r.QueryRow(
		ctx, query,
		m.Status,
		m.ApprovedBy,
		m.RespondedAt,
		m.ResponseNote,
		m.ResultBookingID,
		m.ID,
	).Scan(&m.UpdatedAt)

	if err != nil {
		if base.IsNotFound(err) {
			return ErrStaleState
		}
		return fmt.Errorf("resolve booking modification: %w", err)
	}

	r.logger.Info("Booking modification resolved",
		zap.Int64("modification_id", m.ID),
		zap.String("status", string(m.Status)))

	return nil
}

// ListPendingBefore получает pending запросы с предложенной датой раньше date
func (r *ModificationRepository) ListPendingBefore(ctx context.Context, date time.Time) ([]*model.BookingModification, error) {
	query := `SELECT ` + modificationColumns + `
		FROM booking_modifications
		WHERE status = 'pending' AND new_date <= $1
		ORDER BY new_date
	`

	rows, err := r.Query(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("list stale modifications: %w", err)
	}
	defer rows.Close()

	var mods []*model.BookingModification
	for rows.Next() {
		m, err := scanModification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking modification: %w", err)
		}
		mods = append(mods, m)
	}

	return mods, rows.Err()
}
