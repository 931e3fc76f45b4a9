package memory

import (
	"context"
	"sort"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository"
)

// UserStore пользователи
type UserStore struct{ st *Store }

func (s *Store) Users() *UserStore { return &UserStore{st: s} }

func (r *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	defer r.st.enter(ctx)()

	u, ok := r.st.state.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// AvailabilityStore еженедельные слоты учителей
type AvailabilityStore struct{ st *Store }

func (s *Store) Availability() *AvailabilityStore { return &AvailabilityStore{st: s} }

func (r *AvailabilityStore) SlotsFor(ctx context.Context, teacherID int64, dayOfWeek int) ([]*model.TeacherAvailability, error) {
	defer r.st.enter(ctx)()

	var slots []*model.TeacherAvailability
	for _, a := range r.st.state.availabilities {
		if a.TeacherID == teacherID && a.DayOfWeek == dayOfWeek {
			a := a
			slots = append(slots, &a)
		}
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].StartTime == slots[j].StartTime {
			return slots[i].ID < slots[j].ID
		}
		return slots[i].StartTime < slots[j].StartTime
	})
	return slots, nil
}

// SubjectStore предметы учителей
type SubjectStore struct{ st *Store }

func (s *Store) Subjects() *SubjectStore { return &SubjectStore{st: s} }

// FindOrCreate возвращает предмет по паре (профиль учителя, шаблон), создавая его один раз
func (r *SubjectStore) FindOrCreate(ctx context.Context, teacherID, templateID int64) (*model.Subject, error) {
	defer r.st.enter(ctx)()

	profileID, ok := r.st.state.teacherProfiles[teacherID]
	if !ok {
		return nil, repository.ErrSubjectTemplateNotFound
	}
	tpl, ok := r.st.state.templates[templateID]
	if !ok {
		return nil, repository.ErrSubjectTemplateNotFound
	}

	for _, subj := range r.st.state.subjects {
		if subj.TeacherProfileID == profileID && subj.SubjectTemplateID == templateID {
			return &subj, nil
		}
	}

	subj := model.Subject{
		ID:                r.st.state.next("subjects"),
		TeacherProfileID:  profileID,
		TeacherID:         teacherID,
		SubjectTemplateID: templateID,
		Name:              tpl.Name,
		HourlyRate:        tpl.HourlyRate,
		Currency:          tpl.Currency,
		CreatedAt:         time.Now(),
	}
	r.st.state.subjects[subj.ID] = subj
	return &subj, nil
}

func (r *SubjectStore) GetByID(ctx context.Context, id int64) (*model.Subject, error) {
	defer r.st.enter(ctx)()

	subj, ok := r.st.state.subjects[id]
	if !ok {
		return nil, nil
	}
	return &subj, nil
}

// Count количество созданных предметов
func (r *SubjectStore) Count() int {
	defer r.st.enter(context.Background())()
	return len(r.st.state.subjects)
}
