package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBooking(teacherID int64, date time.Time, start model.TimeOfDay) *model.Booking {
	return &model.Booking{
		StudentID:       1,
		TeacherID:       teacherID,
		SubjectID:       1,
		BookingDate:     date,
		StartTime:       start,
		EndTime:         start + 60,
		DurationMinutes: 60,
		Timezone:        "UTC",
		Status:          model.BookingStatusPending,
		Amount:          decimal.NewFromInt(100),
		Currency:        model.CurrencyNGN,
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.WithinTx(ctx, func(ctx context.Context) error {
		w, err := st.Wallets().GetOrCreateForUpdate(ctx, 7, model.CurrencyNGN)
		require.NoError(t, err)
		w.Balance = decimal.NewFromInt(500)
		require.NoError(t, st.Wallets().Update(ctx, w))
		return boom
	})
	require.ErrorIs(t, err, boom)

	w, err := st.Wallets().GetByUserID(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestWithinTxIsReentrant(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	err := st.WithinTx(ctx, func(ctx context.Context) error {
		return st.WithinTx(ctx, func(ctx context.Context) error {
			_, err := st.Wallets().GetOrCreateForUpdate(ctx, 1, model.CurrencyNGN)
			return err
		})
	})
	require.NoError(t, err)

	w, err := st.Wallets().GetByUserID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, w)
}

func TestWalletUpdateRejectsNegativeBalance(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	w, err := st.Wallets().GetOrCreateForUpdate(ctx, 1, model.CurrencyNGN)
	require.NoError(t, err)

	w.Balance = decimal.NewFromInt(-1)
	assert.ErrorIs(t, st.Wallets().Update(ctx, w), ErrNegativeBalance)
}

func TestUpdateTransactionStatusGuardsPreviousStatus(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	wallets := st.Wallets()

	tx := &model.WalletTransaction{
		WalletID:  1,
		Direction: model.DirectionCredit,
		Amount:    decimal.NewFromInt(10),
		Status:    model.TransactionStatusPending,
		Reference: "ref-1",
	}
	require.NoError(t, wallets.CreateTransaction(ctx, tx))

	tx.Status = model.TransactionStatusCompleted
	require.NoError(t, wallets.UpdateTransactionStatus(ctx, tx, model.TransactionStatusPending))

	tx.Status = model.TransactionStatusFailed
	assert.ErrorIs(t, wallets.UpdateTransactionStatus(ctx, tx, model.TransactionStatusPending), repository.ErrStaleState)

	txs, err := wallets.ListTransactionsByReference(ctx, "ref-1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, model.TransactionStatusCompleted, txs[0].Status)
}

func TestBookingSlotUniqueness(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	bookings := st.Bookings()
	date := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)

	first := testBooking(5, date, model.NewTimeOfDay(10, 0))
	require.NoError(t, bookings.Create(ctx, first))

	assert.ErrorIs(t, bookings.Create(ctx, testBooking(5, date, model.NewTimeOfDay(10, 0))), repository.ErrSlotTaken)
	assert.NoError(t, bookings.Create(ctx, testBooking(6, date, model.NewTimeOfDay(10, 0))))

	first.Status = model.BookingStatusCancelled
	require.NoError(t, bookings.Update(ctx, first, model.ActiveBookingStatuses))
	assert.NoError(t, bookings.Create(ctx, testBooking(5, date, model.NewTimeOfDay(10, 0))))
}

func TestBookingOverlappingSpanRejected(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	bookings := st.Bookings()
	date := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)

	long := testBooking(5, date, model.NewTimeOfDay(10, 0))
	long.EndTime = model.NewTimeOfDay(12, 0)
	long.DurationMinutes = 120
	require.NoError(t, bookings.Create(ctx, long))

	assert.ErrorIs(t, bookings.Create(ctx, testBooking(5, date, model.NewTimeOfDay(11, 0))), repository.ErrSlotTaken)
	assert.ErrorIs(t, bookings.Create(ctx, testBooking(5, date, model.NewTimeOfDay(9, 30))), repository.ErrSlotTaken)

	// соседние интервалы не пересекаются
	assert.NoError(t, bookings.Create(ctx, testBooking(5, date, model.NewTimeOfDay(12, 0))))
	assert.NoError(t, bookings.Create(ctx, testBooking(5, date, model.NewTimeOfDay(9, 0))))
}

func TestBookingUpdateGuardsStatus(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	bookings := st.Bookings()

	b := testBooking(5, time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC), model.NewTimeOfDay(10, 0))
	require.NoError(t, bookings.Create(ctx, b))

	b.Status = model.BookingStatusApproved
	require.NoError(t, bookings.Update(ctx, b, []model.BookingStatus{model.BookingStatusPending}))

	b.Status = model.BookingStatusConfirmed
	assert.ErrorIs(t, bookings.Update(ctx, b, []model.BookingStatus{model.BookingStatusPending}), repository.ErrStaleState)

	stored, err := bookings.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusApproved, stored.Status)
}

func TestSingleActiveModification(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	mods := st.Modifications()

	newMod := func() *model.BookingModification {
		return &model.BookingModification{
			Kind:      model.ModificationReschedule,
			BookingID: 3,
			NewDate:   time.Date(2026, 11, 9, 0, 0, 0, 0, time.UTC),
			Status:    model.ModificationStatusPending,
		}
	}

	first := newMod()
	require.NoError(t, mods.Create(ctx, first))
	assert.ErrorIs(t, mods.Create(ctx, newMod()), repository.ErrModificationPending)

	first.Status = model.ModificationStatusRejected
	require.NoError(t, mods.Resolve(ctx, first))
	assert.ErrorIs(t, mods.Resolve(ctx, first), repository.ErrStaleState)

	assert.NoError(t, mods.Create(ctx, newMod()))
}

func TestSubjectFindOrCreateIsIdempotent(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	teacher := st.AddUser(model.User{Username: "teacher"})
	st.AddTeacher(teacher.ID)
	tpl := st.AddSubjectTemplate("Math", decimal.NewFromInt(5000), model.CurrencyNGN)

	first, err := st.Subjects().FindOrCreate(ctx, teacher.ID, tpl)
	require.NoError(t, err)
	second, err := st.Subjects().FindOrCreate(ctx, teacher.ID, tpl)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, st.Subjects().Count())

	_, err = st.Subjects().FindOrCreate(ctx, teacher.ID, tpl+1)
	assert.ErrorIs(t, err, repository.ErrSubjectTemplateNotFound)
}

func TestSlotsForSortedByStart(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	st.AddAvailability(model.TeacherAvailability{TeacherID: 1, DayOfWeek: 1, StartTime: model.NewTimeOfDay(14, 0), EndTime: model.NewTimeOfDay(15, 0), IsActive: true})
	st.AddAvailability(model.TeacherAvailability{TeacherID: 1, DayOfWeek: 1, StartTime: model.NewTimeOfDay(9, 0), EndTime: model.NewTimeOfDay(10, 0), IsActive: true})
	st.AddAvailability(model.TeacherAvailability{TeacherID: 1, DayOfWeek: 2, StartTime: model.NewTimeOfDay(9, 0), EndTime: model.NewTimeOfDay(10, 0), IsActive: true})

	slots, err := st.Availability().SlotsFor(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, model.NewTimeOfDay(9, 0), slots[0].StartTime)
	assert.Equal(t, "UTC", slots[0].Timezone)
}
