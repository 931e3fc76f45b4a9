package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository/base"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// AvailabilityRepository читает еженедельные слоты учителей
type AvailabilityRepository struct {
	*base.Repository
	logger *zap.Logger
}

// NewAvailabilityRepository создаёт новый репозиторий
func NewAvailabilityRepository(pool *pgxpool.Pool, logger *zap.Logger) *AvailabilityRepository {
	return &AvailabilityRepository{
		Repository: base.NewRepository(pool),
		logger:     logger,
	}
}

// SlotsFor получает все слоты учителя на день недели (включая неактивные,
// фильтрация по is_active делается при разрешении)
func (r *AvailabilityRepository) SlotsFor(ctx context.Context, teacherID int64, dayOfWeek int) ([]*model.TeacherAvailability, error) {
	query := `
		SELECT id, teacher_id, day_of_week, start_time, end_time, is_active, timezone, created_at
		FROM teacher_availabilities
		WHERE teacher_id = $1 AND day_of_week = $2
		ORDER BY start_time
	`

	rows, err := r.Query(ctx, query, teacherID, dayOfWeek)
	if err != nil {
		return nil, fmt.Errorf("get availability slots: %w", err)
	}
	defer rows.Close()

	var slots []*model.TeacherAvailability
	for rows.Next() {
		var (
			slot       model.TeacherAvailability
			start, end pgtype.Time
		)
		err := rows.Scan(
			&slot.ID,
			&slot.TeacherID,
			&slot.DayOfWeek,
			&start,
			&end,
			&slot.IsActive,
			&slot.Timezone,
			&slot.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan availability slot: %w", err)
		}
		slot.StartTime = fromPgTime(start)
		slot.EndTime = fromPgTime(end)
		slots = append(slots, &slot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate availability slots: %w", err)
	}

	r.logger.Debug("Availability slots loaded",
		zap.Int64("teacher_id", teacherID),
		zap.Int("day_of_week", dayOfWeek),
		zap.Int("count", len(slots)))

	return slots, nil
}
