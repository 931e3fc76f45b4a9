package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/shopspring/decimal"
)

// Хранилища, через которые работают сервисы. Реализации: internal/repository
// (Postgres) и internal/repository/memory

type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type WalletStore interface {
	GetOrCreateForUpdate(ctx context.Context, userID int64, currency string) (*model.Wallet, error)
	GetByUserID(ctx context.Context, userID int64) (*model.Wallet, error)
	Update(ctx context.Context, wallet *model.Wallet) error
	CreateTransaction(ctx context.Context, t *model.WalletTransaction) error
	UpdateTransactionStatus(ctx context.Context, t *model.WalletTransaction, from model.TransactionStatus) error
	ListTransactions(ctx context.Context, walletID int64) ([]*model.WalletTransaction, error)
	ListTransactionsByReference(ctx context.Context, reference string) ([]*model.WalletTransaction, error)
}

type AvailabilityStore interface {
	SlotsFor(ctx context.Context, teacherID int64, dayOfWeek int) ([]*model.TeacherAvailability, error)
}

type SubjectStore interface {
	FindOrCreate(ctx context.Context, teacherID, templateID int64) (*model.Subject, error)
	GetByID(ctx context.Context, id int64) (*model.Subject, error)
}

type BookingStore interface {
	Create(ctx context.Context, booking *model.Booking) error
	GetByID(ctx context.Context, id int64) (*model.Booking, error)
	GetByStudentID(ctx context.Context, studentID int64) ([]*model.Booking, error)
	GetByPaymentReference(ctx context.Context, reference string) ([]*model.Booking, error)
	Update(ctx context.Context, booking *model.Booking, expected []model.BookingStatus) error
}

type SessionStore interface {
	Create(ctx context.Context, session *model.TeachingSession) error
	GetByBookingID(ctx context.Context, bookingID int64) (*model.TeachingSession, error)
	Reschedule(ctx context.Context, bookingID int64, start, end time.Time) error
	UpdateStatus(ctx context.Context, bookingID int64, status model.SessionStatus) error
}

type ModificationStore interface {
	Create(ctx context.Context, m *model.BookingModification) error
	GetByID(ctx context.Context, id int64) (*model.BookingModification, error)
	GetPendingByBookingID(ctx context.Context, bookingID int64) (*model.BookingModification, error)
	Resolve(ctx context.Context, m *model.BookingModification) error
	ListPendingBefore(ctx context.Context, date time.Time) ([]*model.BookingModification, error)
}

type HistoryStore interface {
	Append(ctx context.Context, h *model.BookingHistory) error
	ListByBookingID(ctx context.Context, bookingID int64) ([]*model.BookingHistory, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// Notifier доставляет события участникам. Ошибки только логируются
type Notifier interface {
	Notify(ctx context.Context, event model.Event) error
}

// Gateway внешний платёжный провайдер. Refund с нулевой суммой возвращает платёж полностью
type Gateway interface {
	Charge(ctx context.Context, charge model.GatewayCharge) (*model.GatewayResult, error)
	Capture(ctx context.Context, transactionID string) (*model.GatewayResult, error)
	Refund(ctx context.Context, transactionID string, amount decimal.Decimal, currency string) error
}

// RequestGuard не даёт выполнить один и тот же запрос дважды одновременно
// и хранит результаты завершённых запросов. ok=false если ключ уже занят
type RequestGuard interface {
	Acquire(ctx context.Context, key string) (release func(), ok bool, err error)
	Load(ctx context.Context, key string, dest any) (bool, error)
	Store(ctx context.Context, key string, value any) error
}

// Stores набор хранилищ движка
type Stores struct {
	Tx            TxManager
	Wallets       WalletStore
	Availability  AvailabilityStore
	Subjects      SubjectStore
	Bookings      BookingStore
	Sessions      SessionStore
	Modifications ModificationStore
	History       HistoryStore
	Users         UserStore
}
