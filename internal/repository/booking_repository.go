package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BookingRepository struct {
	*base.Repository
}

func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{Repository: base.NewRepository(pool)}
}

const bookingColumns = `
	id, reference, student_id, teacher_id, subject_id, booking_date, start_time, end_time,
	duration_minutes, timezone, status, notes, amount, currency, payment_method, payment_reference,
	created_by, approved_by, approved_at, rescheduled_by, rescheduled_at, reschedule_reason,
	cancelled_by, cancelled_at, cancellation_reason, rebooked_from_id, created_at, updated_at`

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var (
		b          model.Booking
		start, end pgtype.Time
	)
	err := row.Scan(
		&b.ID,
		&b.Reference,
		&b.StudentID,
		&b.TeacherID,
		&b.SubjectID,
		&b.BookingDate,
		&start,
		&end,
		&b.DurationMinutes,
		&b.Timezone,
		&b.Status,
		&b.Notes,
		&b.Amount,
		&b.Currency,
		&b.PaymentMethod,
		&b.PaymentReference,
		&b.CreatedBy,
		&b.ApprovedBy,
		&b.ApprovedAt,
		&b.RescheduledBy,
		&b.RescheduledAt,
		&b.RescheduleReason,
		&b.CancelledBy,
		&b.CancelledAt,
		&b.CancellationReason,
		&b.RebookedFromID,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.StartTime = fromPgTime(start)
	b.EndTime = fromPgTime(end)
	return &b, nil
}

// Create создаёт новое бронирование
func (r *BookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	query := `
		INSERT INTO bookings (
			reference, student_id, teacher_id, subject_id, booking_date, start_time, end_time,
			duration_minutes, timezone, status, notes, amount, currency, payment_method,
			payment_reference, created_by, approved_by, approved_at, rebooked_from_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id, created_at, updated_at
	`

	err := r.QueryRow(
		ctx, query,
		booking.Reference,
		booking.StudentID,
		booking.TeacherID,
		booking.SubjectID,
		booking.BookingDate,
		toPgTime(booking.StartTime),
		toPgTime(booking.EndTime),
		booking.DurationMinutes,
		booking.Timezone,
		booking.Status,
		booking.Notes,
		booking.Amount,
		booking.Currency,
		booking.PaymentMethod,
		booking.PaymentReference,
		booking.CreatedBy,
		booking.ApprovedBy,
		booking.ApprovedAt,
		booking.RebookedFromID,
	).Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)

	if err != nil {
		if mapped := constraintError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("create booking: %w", err)
	}

	return nil
}

// GetByID получает бронирование по ID
func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get booking by id: %w", err)
	}

	return booking, nil
}

func (r *BookingRepository) list(ctx context.Context, query string, args ...any) ([]*model.Booking, error) {
	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*model.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	return bookings, rows.Err()
}

// GetByStudentID получает все бронирования студента
func (r *BookingRepository) GetByStudentID(ctx context.Context, studentID int64) ([]*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE student_id = $1 ORDER BY booking_date DESC, start_time DESC`
	return r.list(ctx, query, studentID)
}

// GetByPaymentReference получает бронирования, оплаченные одним платежом
func (r *BookingRepository) GetByPaymentReference(ctx context.Context, reference string) ([]*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE payment_reference = $1 ORDER BY id`
	return r.list(ctx, query, reference)
}

// Update сохраняет изменяемые поля, если статус в БД всё ещё один из expected
func (r *BookingRepository) Update(ctx context.Context, booking *model.Booking, expected []model.BookingStatus) error {
	query := `
		UPDATE bookings
		SET status = $1,
			booking_date = $2,
			start_time = $3,
			end_time = $4,
			duration_minutes = $5,
			timezone = $6,
			approved_by = $7,
			approved_at = $8,
			rescheduled_by = $9,
			rescheduled_at = $10,
			reschedule_reason = $11,
			cancelled_by = $12,
			cancelled_at = $13,
			cancellation_reason = $14,
			updated_at = NOW()
		WHERE id = $15 AND status = ANY($16)
		RETURNING updated_at
	`

	statuses := make([]string, len(expected))
	for i, s := range expected {
		statuses[i] = string(s)
	}

	err := r.QueryRow(
		ctx, query,
		booking.Status,
		booking.BookingDate,
		toPgTime(booking.StartTime),
		toPgTime(booking.EndTime),
		booking.DurationMinutes,
		booking.Timezone,
		booking.ApprovedBy,
		booking.ApprovedAt,
		booking.RescheduledBy,
		booking.RescheduledAt,
		booking.RescheduleReason,
		booking.CancelledBy,
		booking.CancelledAt,
		booking.CancellationReason,
		booking.ID,
		statuses,
	).Scan(&booking.UpdatedAt)

	if err != nil {
		if base.IsNotFound(err) {
			return ErrStaleState
		}
		if mapped := constraintError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("update booking: %w", err)
	}

	return nil
}
