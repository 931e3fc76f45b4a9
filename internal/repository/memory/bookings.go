package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository"
)

// BookingStore бронирования
type BookingStore struct{ st *Store }

func (s *Store) Bookings() *BookingStore { return &BookingStore{st: s} }

// slotTaken повторяет ограничение bookings_teacher_no_overlap: интервалы
// неотменённых бронирований одного учителя в один день не пересекаются
func (r *BookingStore) slotTaken(b *model.Booking) bool {
	if b.Status == model.BookingStatusCancelled {
		return false
	}
	for _, other := range r.st.state.bookings {
		if other.ID == b.ID || other.Status == model.BookingStatusCancelled {
			continue
		}
		if other.TeacherID == b.TeacherID &&
			other.BookingDate.Equal(b.BookingDate) &&
			other.StartTime < b.EndTime && b.StartTime < other.EndTime {
			return true
		}
	}
	return false
}

func (r *BookingStore) Create(ctx context.Context, booking *model.Booking) error {
	defer r.st.enter(ctx)()

	booking.BookingDate = model.DateOnly(booking.BookingDate)
	if r.slotTaken(booking) {
		return repository.ErrSlotTaken
	}

	now := time.Now()
	booking.ID = r.st.state.next("bookings")
	booking.CreatedAt = now
	booking.UpdatedAt = now
	r.st.state.bookings[booking.ID] = *booking
	return nil
}

func (r *BookingStore) GetByID(ctx context.Context, id int64) (*model.Booking, error) {
	defer r.st.enter(ctx)()

	b, ok := r.st.state.bookings[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r *BookingStore) GetByStudentID(ctx context.Context, studentID int64) ([]*model.Booking, error) {
	defer r.st.enter(ctx)()

	var bookings []*model.Booking
	for _, b := range r.st.state.bookings {
		if b.StudentID == studentID {
			b := b
			bookings = append(bookings, &b)
		}
	}
	sort.Slice(bookings, func(i, j int) bool {
		if !bookings[i].BookingDate.Equal(bookings[j].BookingDate) {
			return bookings[i].BookingDate.After(bookings[j].BookingDate)
		}
		return bookings[i].StartTime > bookings[j].StartTime
	})
	return bookings, nil
}

func (r *BookingStore) GetByPaymentReference(ctx context.Context, reference string) ([]*model.Booking, error) {
	defer r.st.enter(ctx)()

	var bookings []*model.Booking
	for _, b := range r.st.state.bookings {
		if reference != "" && b.PaymentReference == reference {
			b := b
			bookings = append(bookings, &b)
		}
	}
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].ID < bookings[j].ID })
	return bookings, nil
}

// Update сохраняет бронирование, если его текущий статус входит в expected
func (r *BookingStore) Update(ctx context.Context, booking *model.Booking, expected []model.BookingStatus) error {
	defer r.st.enter(ctx)()

	current, ok := r.st.state.bookings[booking.ID]
	if !ok || !hasStatus(current.Status, expected) {
		return repository.ErrStaleState
	}

	booking.BookingDate = model.DateOnly(booking.BookingDate)
	if r.slotTaken(booking) {
		return repository.ErrSlotTaken
	}

	booking.CreatedAt = current.CreatedAt
	booking.UpdatedAt = time.Now()
	r.st.state.bookings[booking.ID] = *booking
	return nil
}

func hasStatus(status model.BookingStatus, expected []model.BookingStatus) bool {
	for _, s := range expected {
		if s == status {
			return true
		}
	}
	return false
}

// SessionStore сессии занятий
type SessionStore struct{ st *Store }

func (s *Store) Sessions() *SessionStore { return &SessionStore{st: s} }

func (r *SessionStore) Create(ctx context.Context, session *model.TeachingSession) error {
	defer r.st.enter(ctx)()

	if _, ok := r.st.state.sessions[session.BookingID]; ok {
		return fmt.Errorf("create teaching session: booking %d already has a session", session.BookingID)
	}

	now := time.Now()
	session.ID = r.st.state.next("teaching_sessions")
	session.CreatedAt = now
	session.UpdatedAt = now
	r.st.state.sessions[session.BookingID] = *session
	return nil
}

func (r *SessionStore) GetByBookingID(ctx context.Context, bookingID int64) (*model.TeachingSession, error) {
	defer r.st.enter(ctx)()

	s, ok := r.st.state.sessions[bookingID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// Reschedule переносит запланированную сессию
func (r *SessionStore) Reschedule(ctx context.Context, bookingID int64, start, end time.Time) error {
	defer r.st.enter(ctx)()

	s, ok := r.st.state.sessions[bookingID]
	if !ok || s.Status != model.SessionStatusScheduled {
		return fmt.Errorf("reschedule teaching session: no scheduled session for booking %d", bookingID)
	}

	s.ScheduledStart = start
	s.ScheduledEnd = end
	s.UpdatedAt = time.Now()
	r.st.state.sessions[bookingID] = s
	return nil
}

func (r *SessionStore) UpdateStatus(ctx context.Context, bookingID int64, status model.SessionStatus) error {
	defer r.st.enter(ctx)()

	s, ok := r.st.state.sessions[bookingID]
	if !ok {
		return fmt.Errorf("update teaching session status: no session for booking %d", bookingID)
	}

	s.Status = status
	s.UpdatedAt = time.Now()
	r.st.state.sessions[bookingID] = s
	return nil
}

// ModificationStore запросы на перенос и повторную запись
type ModificationStore struct{ st *Store }

func (s *Store) Modifications() *ModificationStore { return &ModificationStore{st: s} }

func (r *ModificationStore) Create(ctx context.Context, m *model.BookingModification) error {
	defer r.st.enter(ctx)()

	if m.Status == model.ModificationStatusPending {
		for _, other := range r.st.state.modifications {
			if other.BookingID == m.BookingID && other.IsPending() {
				return repository.ErrModificationPending
			}
		}
	}

	now := time.Now()
	m.ID = r.st.state.next("booking_modifications")
	m.NewDate = model.DateOnly(m.NewDate)
	m.CreatedAt = now
	m.UpdatedAt = now
	r.st.state.modifications[m.ID] = *m
	return nil
}

func (r *ModificationStore) GetByID(ctx context.Context, id int64) (*model.BookingModification, error) {
	defer r.st.enter(ctx)()

	m, ok := r.st.state.modifications[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (r *ModificationStore) GetPendingByBookingID(ctx context.Context, bookingID int64) (*model.BookingModification, error) {
	defer r.st.enter(ctx)()

	for _, m := range r.st.state.modifications {
		if m.BookingID == bookingID && m.IsPending() {
			return &m, nil
		}
	}
	return nil, nil
}

// Resolve фиксирует решение по запросу, только если он всё ещё pending
func (r *ModificationStore) Resolve(ctx context.Context, m *model.BookingModification) error {
	defer r.st.enter(ctx)()

	current, ok := r.st.state.modifications[m.ID]
	if !ok || !current.IsPending() {
		return repository.ErrStaleState
	}

	current.Status = m.Status
	current.ApprovedBy = m.ApprovedBy
	current.RespondedAt = m.RespondedAt
	current.ResponseNote = m.ResponseNote
	current.ResultBookingID = m.ResultBookingID
	current.UpdatedAt = time.Now()
	m.UpdatedAt = current.UpdatedAt
	r.st.state.modifications[m.ID] = current
	return nil
}

func (r *ModificationStore) ListPendingBefore(ctx context.Context, date time.Time) ([]*model.BookingModification, error) {
	defer r.st.enter(ctx)()

	var mods []*model.BookingModification
	for _, m := range r.st.state.modifications {
		if m.IsPending() && !m.NewDate.After(date) {
			m := m
			mods = append(mods, &m)
		}
	}
	sort.Slice(mods, func(i, j int) bool {
		if !mods[i].NewDate.Equal(mods[j].NewDate) {
			return mods[i].NewDate.Before(mods[j].NewDate)
		}
		return mods[i].ID < mods[j].ID
	})
	return mods, nil
}

// HistoryStore журнал изменений бронирований
type HistoryStore struct{ st *Store }

func (s *Store) History() *HistoryStore { return &HistoryStore{st: s} }

func (r *HistoryStore) Append(ctx context.Context, h *model.BookingHistory) error {
	defer r.st.enter(ctx)()

	h.ID = r.st.state.next("booking_history")
	h.CreatedAt = time.Now()
	r.st.state.history = append(r.st.state.history, *h)
	return nil
}

func (r *HistoryStore) ListByBookingID(ctx context.Context, bookingID int64) ([]*model.BookingHistory, error) {
	defer r.st.enter(ctx)()

	entries := []*model.BookingHistory{}
	for _, h := range r.st.state.history {
		if h.BookingID == bookingID {
			h := h
			entries = append(entries, &h)
		}
	}
	return entries, nil
}
