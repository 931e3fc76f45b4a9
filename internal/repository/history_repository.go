package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HistoryRepository журнал изменений бронирований, только вставка
type HistoryRepository struct {
	*base.Repository
}

func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{Repository: base.NewRepository(pool)}
}

func (r *HistoryRepository) Append(ctx context.Context, h *model.BookingHistory) error {
	query := `
		INSERT INTO booking_history (booking_id, action, actor_id, previous_data, new_data, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := r.QueryRow(
		ctx, query,
		h.BookingID,
		h.Action,
		h.ActorID,
		nullJSON(h.PreviousData),
		nullJSON(h.NewData),
		h.IPAddress,
		h.UserAgent,
	).Scan(&h.ID, &h.CreatedAt)

	if err != nil {
		return fmt.Errorf("append booking history: %w", err)
	}

	return nil
}

func (r *HistoryRepository) ListByBookingID(ctx context.Context, bookingID int64) ([]*model.BookingHistory, error) {
	query := `
		SELECT id, booking_id, action, actor_id, previous_data, new_data, ip_address, user_agent, created_at
		FROM booking_history
		WHERE booking_id = $1
		ORDER BY id
	`

	rows, err := r.Query(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("list booking history: %w", err)
	}
	defer rows.Close()

	var entries []*model.BookingHistory
	for rows.Next() {
		var (
			h         model.BookingHistory
			prev, cur []byte
		)
		if err := rows.Scan(&h.ID, &h.BookingID, &h.Action, &h.ActorID, &prev, &cur, &h.IPAddress, &h.UserAgent, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan booking history: %w", err)
		}
		h.PreviousData = prev
		h.NewData = cur
		entries = append(entries, &h)
	}

	return entries, rows.Err()
}

func nullJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}
