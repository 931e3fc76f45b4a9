// Package memory хранилище движка в памяти процесса. Используется в тестах и
// при STORAGE=memory. Повторяет ограничения схемы Postgres: уникальный активный
// слот учителя, один pending запрос на бронирование, неотрицательный баланс
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/shopspring/decimal"
)

// ErrNegativeBalance нарушение ограничения balance >= 0
var ErrNegativeBalance = errors.New("wallet balance must not be negative")

type txKey struct{}

type subjectTemplate struct {
	ID         int64
	Name       string
	HourlyRate decimal.Decimal
	Currency   string
}

type state struct {
	seq             map[string]int64
	users           map[int64]model.User
	teacherProfiles map[int64]int64 // user_id -> teacher_profile_id
	templates       map[int64]subjectTemplate
	subjects        map[int64]model.Subject
	availabilities  map[int64]model.TeacherAvailability
	wallets         map[int64]model.Wallet // by user_id
	walletTxs       []model.WalletTransaction
	bookings        map[int64]model.Booking
	sessions        map[int64]model.TeachingSession // by booking_id
	modifications   map[int64]model.BookingModification
	history         []model.BookingHistory
}

func newState() *state {
	return &state{
		seq:             make(map[string]int64),
		users:           make(map[int64]model.User),
		teacherProfiles: make(map[int64]int64),
		templates:       make(map[int64]subjectTemplate),
		subjects:        make(map[int64]model.Subject),
		availabilities:  make(map[int64]model.TeacherAvailability),
		wallets:         make(map[int64]model.Wallet),
		bookings:        make(map[int64]model.Booking),
		sessions:        make(map[int64]model.TeachingSession),
		modifications:   make(map[int64]model.BookingModification),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.seq {
		c.seq[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.teacherProfiles {
		c.teacherProfiles[k] = v
	}
	for k, v := range s.templates {
		c.templates[k] = v
	}
	for k, v := range s.subjects {
		c.subjects[k] = v
	}
	for k, v := range s.availabilities {
		c.availabilities[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	c.walletTxs = append([]model.WalletTransaction(nil), s.walletTxs...)
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	for k, v := range s.modifications {
		c.modifications[k] = v
	}
	c.history = append([]model.BookingHistory(nil), s.history...)
	return c
}

func (s *state) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

// Store все хранилища движка над одним состоянием. Транзакция держит общий
// мьютекс, поэтому операции с кошельками выполняются строго по очереди
type Store struct {
	mu    sync.Mutex
	state *state
}

func NewStore() *Store {
	return &Store{state: newState()}
}

// enter захватывает мьютекс, если вызов не находится внутри транзакции
func (s *Store) enter(ctx context.Context) func() {
	if ctx.Value(txKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// WithinTx выполняет fn атомарно: при ошибке состояние откатывается к снимку
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	snapshot := s.state.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.state = snapshot
		return err
	}

	if err := ctx.Err(); err != nil {
		s.state = snapshot
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// AddUser добавляет пользователя
func (s *Store) AddUser(u model.User) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.ID = s.state.next("users")
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	s.state.users[u.ID] = u
	return u
}

// AddTeacher создаёт профиль учителя для пользователя
func (s *Store) AddTeacher(userID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.state.teacherProfiles[userID]; ok {
		return id
	}
	id := s.state.next("teacher_profiles")
	s.state.teacherProfiles[userID] = id
	return id
}

// AddSubjectTemplate добавляет шаблон предмета
func (s *Store) AddSubjectTemplate(name string, hourlyRate decimal.Decimal, currency string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.state.next("subject_templates")
	s.state.templates[id] = subjectTemplate{ID: id, Name: name, HourlyRate: hourlyRate, Currency: currency}
	return id
}

// AddAvailability добавляет еженедельный слот учителя
func (s *Store) AddAvailability(a model.TeacherAvailability) model.TeacherAvailability {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.ID = s.state.next("teacher_availabilities")
	if a.Timezone == "" {
		a.Timezone = "UTC"
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.state.availabilities[a.ID] = a
	return a
}
