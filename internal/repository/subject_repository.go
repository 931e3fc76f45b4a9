package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type SubjectRepository struct {
	*base.Repository
	logger *zap.Logger
}

func NewSubjectRepository(pool *pgxpool.Pool, logger *zap.Logger) *SubjectRepository {
	return &SubjectRepository{
		Repository: base.NewRepository(pool),
		logger:     logger,
	}
}

// FindOrCreate возвращает предмет учителя по шаблону, создавая его при первом обращении.
// Уникальный индекс (teacher_profile_id, subject_template_id) делает вставку идемпотентной
func (r *SubjectRepository) FindOrCreate(ctx context.Context, teacherID, templateID int64) (*model.Subject, error) {
	inserted, err := r.ExecAffected(ctx, `
		INSERT INTO subjects (teacher_profile_id, subject_template_id, name, hourly_rate, currency)
		SELECT tp.id, st.id, st.name, st.hourly_rate, st.currency
		FROM teacher_profiles tp, subject_templates st
		WHERE tp.user_id = $1 AND st.id = $2
		ON CONFLICT ON CONSTRAINT subjects_teacher_template_key DO NOTHING
	`, teacherID, templateID)
	if err != nil {
		return nil, fmt.Errorf("upsert subject: %w", err)
	}

	query := `
		SELECT s.id, s.teacher_profile_id, tp.user_id, s.subject_template_id, s.name, s.hourly_rate, s.currency, s.created_at
		FROM subjects s
		INNER JOIN teacher_profiles tp ON tp.id = s.teacher_profile_id
		WHERE tp.user_id = $1 AND s.subject_template_id = $2
	`

	var subject model.Subject
	err = r.QueryRow(ctx, query, teacherID, templateID).Scan(
		&subject.ID,
		&subject.TeacherProfileID,
		&subject.TeacherID,
		&subject.SubjectTemplateID,
		&subject.Name,
		&subject.HourlyRate,
		&subject.Currency,
		&subject.CreatedAt,
	)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, ErrSubjectTemplateNotFound
		}
		return nil, fmt.Errorf("get subject: %w", err)
	}

	if inserted > 0 {
		r.logger.Info("Subject created from template",
			zap.Int64("subject_id", subject.ID),
			zap.Int64("teacher_id", teacherID),
			zap.Int64("template_id", templateID))
	}

	return &subject, nil
}

// GetByID получает предмет по ID
func (r *SubjectRepository) GetByID(ctx context.Context, id int64) (*model.Subject, error) {
	query := `
		SELECT s.id, s.teacher_profile_id, tp.user_id, s.subject_template_id, s.name, s.hourly_rate, s.currency, s.created_at
		FROM subjects s
		INNER JOIN teacher_profiles tp ON tp.id = s.teacher_profile_id
		WHERE s.id = $1
	`

	var subject model.Subject
	err := r.QueryRow(ctx, query, id).Scan(
		&subject.ID,
		&subject.TeacherProfileID,
		&subject.TeacherID,
		&subject.SubjectTemplateID,
		&subject.Name,
		&subject.HourlyRate,
		&subject.Currency,
		&subject.CreatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get subject by id: %w", err)
	}

	return &subject, nil
}
