package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/infrastructure/lock"
	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// понедельник 2 марта 2026, 06:00 UTC
var testNow = time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)

var (
	nextMonday    = time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	nextWednesday = time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
)

// operator сотрудник, сверяющий поступления
var operator = model.Actor{UserID: 900, Operator: true}

func ngn(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, event model.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) types() []model.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	types := make([]model.EventType, len(n.events))
	for i, e := range n.events {
		types[i] = e.Type
	}
	return types
}

type fakeGateway struct {
	mu             sync.Mutex
	pending        bool
	decline        bool
	down           bool
	declineCapture bool
	captureDelay   time.Duration
	captured       map[string]bool
	charges        []model.GatewayCharge
	refunds        []string
	seq            int
}

func (g *fakeGateway) Charge(ctx context.Context, charge model.GatewayCharge) (*model.GatewayResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.down {
		return nil, errors.New("connection refused")
	}
	g.charges = append(g.charges, charge)
	if g.decline {
		return &model.GatewayResult{Success: false, Message: "card declined"}, nil
	}
	g.seq++
	return &model.GatewayResult{
		Success:       true,
		Pending:       g.pending,
		TransactionID: fmt.Sprintf("gw_%d", g.seq),
		ActionURL:     "https://pay.example/approve",
	}, nil
}

func (g *fakeGateway) Capture(ctx context.Context, transactionID string) (*model.GatewayResult, error) {
	time.Sleep(g.captureDelay)

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.down {
		return nil, errors.New("connection refused")
	}
	if g.declineCapture {
		return &model.GatewayResult{Success: false, TransactionID: transactionID, Message: "payment voided"}, nil
	}
	if g.captured == nil {
		g.captured = make(map[string]bool)
	}
	g.captured[transactionID] = true
	return &model.GatewayResult{Success: true, TransactionID: transactionID}, nil
}

func (g *fakeGateway) Refund(ctx context.Context, transactionID string, amount decimal.Decimal, currency string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, transactionID)
	return nil
}

// failingBookings отказывает в сохранении бронирования после заданного числа успешных
type failingBookings struct {
	BookingStore
	allow int
}

func (f *failingBookings) Create(ctx context.Context, b *model.Booking) error {
	if f.allow <= 0 {
		return errors.New("insert booking: connection reset")
	}
	f.allow--
	return f.BookingStore.Create(ctx, b)
}

type testEnv struct {
	t        *testing.T
	store    *memory.Store
	stores   Stores
	engine   *Engine
	gateway  *fakeGateway
	notifier *recordingNotifier
	guard    *lock.LocalGuard
	noGuard  bool
	now      time.Time

	student  model.User
	other    model.User
	teacher  model.User
	template int64
	// слоты учителя: понедельник 10-11 и 11-12, среда 14-15
	mondayMorning int64
	mondayLate    int64
	wednesday     int64
}

type envOption func(*testEnv)

func withoutRequestGuard() envOption {
	return func(e *testEnv) {
		e.noGuard = true
	}
}

func withBookings(wrap func(BookingStore) BookingStore) envOption {
	return func(e *testEnv) {
		e.stores.Bookings = wrap(e.stores.Bookings)
	}
}

func memoryStores(st *memory.Store) Stores {
	return Stores{
		Tx:            st,
		Wallets:       st.Wallets(),
		Availability:  st.Availability(),
		Subjects:      st.Subjects(),
		Bookings:      st.Bookings(),
		Sessions:      st.Sessions(),
		Modifications: st.Modifications(),
		History:       st.History(),
		Users:         st.Users(),
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	st := memory.NewStore()
	e := &testEnv{
		t:        t,
		store:    st,
		stores:   memoryStores(st),
		gateway:  &fakeGateway{},
		notifier: &recordingNotifier{},
		guard:    lock.NewLocalGuard(time.Hour),
		now:      testNow,
	}

	e.student = st.AddUser(model.User{Username: "student", TelegramID: 101})
	e.other = st.AddUser(model.User{Username: "other", TelegramID: 102})
	e.teacher = st.AddUser(model.User{Username: "teacher", TelegramID: 201})
	st.AddTeacher(e.teacher.ID)
	e.template = st.AddSubjectTemplate("Mathematics", ngn(10000), model.CurrencyNGN)

	slot := func(day time.Weekday, from, to int) int64 {
		return st.AddAvailability(model.TeacherAvailability{
			TeacherID: e.teacher.ID,
			DayOfWeek: int(day),
			StartTime: model.NewTimeOfDay(from, 0),
			EndTime:   model.NewTimeOfDay(to, 0),
			IsActive:  true,
		}).ID
	}
	e.mondayMorning = slot(time.Monday, 10, 11)
	e.mondayLate = slot(time.Monday, 11, 12)
	e.wednesday = slot(time.Wednesday, 14, 15)

	for _, opt := range opts {
		opt(e)
	}

	var guard RequestGuard = e.guard
	if e.noGuard {
		guard = nil
	}

	e.engine = NewEngine(e.stores, map[model.MethodKind]Gateway{
		model.MethodCard:         e.gateway,
		model.MethodBankTransfer: e.gateway,
		model.MethodPayPal:       e.gateway,
	}, guard, e.notifier, EngineConfig{
		WalletCurrency: model.CurrencyNGN,
		NGNPerUSD:      ngn(1500),
		GatewayTimeout: time.Second,
		Options: Options{
			CancellationLeadTime: 12 * time.Hour,
			RequestTimeout:       5 * time.Second,
			Now:                  func() time.Time { return e.now },
		},
	}, zap.NewNop())

	return e
}

func (e *testEnv) fund(userID int64, amount int64) {
	e.t.Helper()
	_, err := e.engine.Wallets.Credit(context.Background(), userID, ngn(amount), "top-up")
	require.NoError(e.t, err)
}

func (e *testEnv) balance(userID int64) decimal.Decimal {
	e.t.Helper()
	w, err := e.engine.Wallets.Balance(context.Background(), userID)
	require.NoError(e.t, err)
	return w.Balance
}

func (e *testEnv) draft(method model.PaymentMethod, dates []time.Time, slots ...int64) model.BookingDraft {
	return model.BookingDraft{
		StudentID:         e.student.ID,
		TeacherID:         e.teacher.ID,
		SubjectTemplateID: e.template,
		Dates:             dates,
		AvailabilityIDs:   slots,
		PaymentMethod:     method,
	}
}

// book создаёт одно бронирование на понедельник 10-11 с оплатой с кошелька
func (e *testEnv) book() *model.Booking {
	e.t.Helper()
	e.fund(e.student.ID, 10000)

	res, err := e.engine.Bookings.CreateBooking(context.Background(),
		e.draft(model.WalletMethod{}, []time.Time{nextMonday}, e.mondayMorning))
	require.NoError(e.t, err)
	require.Len(e.t, res.BookingIDs, 1)

	b, err := e.stores.Bookings.GetByID(context.Background(), res.BookingIDs[0])
	require.NoError(e.t, err)
	return b
}

func (e *testEnv) walletTxs(userID int64) []*model.WalletTransaction {
	e.t.Helper()
	txs, err := e.engine.Wallets.Transactions(context.Background(), userID)
	require.NoError(e.t, err)
	return txs
}

func (e *testEnv) history(bookingID int64) []model.HistoryAction {
	e.t.Helper()
	entries, err := e.stores.History.ListByBookingID(context.Background(), bookingID)
	require.NoError(e.t, err)
	actions := make([]model.HistoryAction, len(entries))
	for i, h := range entries {
		actions[i] = h.Action
	}
	return actions
}

func (e *testEnv) countBookings() int {
	e.t.Helper()
	bookings, err := e.stores.Bookings.GetByStudentID(context.Background(), e.student.ID)
	require.NoError(e.t, err)
	return len(bookings)
}
