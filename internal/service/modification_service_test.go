package service

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) requestReschedule(b *model.Booking) *model.BookingModification {
	e.t.Helper()
	m, err := e.engine.Modifications.CreateRescheduleRequest(context.Background(), model.ModificationRequest{
		BookingID:       b.ID,
		StudentID:       b.StudentID,
		NewDate:         nextWednesday,
		AvailabilityIDs: []int64{e.wednesday},
		Reason:          "exam on monday",
	})
	require.NoError(e.t, err)
	return m
}

func TestRescheduleApproved(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	b := e.book()

	m := e.requestReschedule(b)
	assert.Equal(t, model.ModificationStatusPending, m.Status)
	assert.Equal(t, model.NewTimeOfDay(14, 0), m.NewStartTime)
	assert.Equal(t, e.teacher.ID, m.TeacherID)

	approved, err := e.engine.Modifications.ApproveModification(ctx, m.ID, e.teacher.ID, model.Actor{})
	require.NoError(t, err)
	assert.Equal(t, model.ModificationStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, e.teacher.ID, *approved.ApprovedBy)

	updated, err := e.stores.Bookings.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, nextWednesday, updated.BookingDate)
	assert.Equal(t, model.NewTimeOfDay(14, 0), updated.StartTime)
	assert.Equal(t, model.NewTimeOfDay(15, 0), updated.EndTime)
	assert.Equal(t, "exam on monday", updated.RescheduleReason)
	assert.Equal(t, b.Status, updated.Status)

	rescheduled := 0
	for _, action := range e.history(b.ID) {
		if action == model.HistoryRescheduled {
			rescheduled++
		}
	}
	assert.Equal(t, 1, rescheduled)

	session, err := e.stores.Sessions.GetByBookingID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 14, 0, 0, 0, time.UTC), session.ScheduledStart)

	// баланс не меняется при переносе
	assert.True(t, e.balance(e.student.ID).IsZero())

	e.engine.Dispatcher.Wait()
	assert.Contains(t, e.notifier.types(), model.EventModificationApproved)
}

func TestSecondPendingRequestIsRejected(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	b := e.book()
	first := e.requestReschedule(b)

	_, err := e.engine.Modifications.CreateRescheduleRequest(ctx, model.ModificationRequest{
		BookingID:       b.ID,
		StudentID:       e.student.ID,
		NewDate:         nextMonday,
		AvailabilityIDs: []int64{e.mondayLate},
	})
	require.ErrorIs(t, err, ErrModificationAlreadyPending)

	_, err = e.engine.Modifications.CreateRebookRequest(ctx, model.ModificationRequest{
		BookingID:       b.ID,
		StudentID:       e.student.ID,
		NewDate:         nextMonday,
		AvailabilityIDs: []int64{e.mondayLate},
	})
	require.ErrorIs(t, err, ErrModificationAlreadyPending)

	pending, err := e.stores.Modifications.GetPendingByBookingID(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, first.ID, pending.ID)
}

func TestRescheduleRequestValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	b := e.book()

	_, err := e.engine.Modifications.CreateRescheduleRequest(ctx, model.ModificationRequest{
		BookingID:       b.ID,
		StudentID:       e.other.ID,
		NewDate:         nextWednesday,
		AvailabilityIDs: []int64{e.wednesday},
	})
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = e.engine.Modifications.CreateRescheduleRequest(ctx, model.ModificationRequest{
		BookingID:       b.ID,
		StudentID:       e.student.ID,
		NewDate:         nextMonday.AddDate(0, 0, 1),
		AvailabilityIDs: []int64{e.wednesday},
	})
	require.ErrorIs(t, err, ErrNoValidSlots)

	_, err = e.engine.Modifications.CreateRescheduleRequest(ctx, model.ModificationRequest{
		BookingID:       b.ID,
		StudentID:       e.student.ID,
		NewDate:         nextWednesday,
		AvailabilityIDs: []int64{},
	})
	assert.Equal(t, CodeInvalidRequest, CodeOf(err))

	_, err = e.engine.Modifications.CreateRescheduleRequest(ctx, model.ModificationRequest{
		BookingID:       404,
		StudentID:       e.student.ID,
		NewDate:         nextWednesday,
		AvailabilityIDs: []int64{e.wednesday},
	})
	require.ErrorIs(t, err, ErrNotFound)

	pending, err := e.stores.Modifications.GetPendingByBookingID(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestRescheduleOfCancelledBookingIsRejected(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	b := e.book()

	_, err := e.engine.Bookings.Cancel(ctx, b.ID, e.student.ID, "", model.Actor{})
	require.NoError(t, err)

	_, err = e.engine.Modifications.CreateRescheduleRequest(ctx, model.ModificationRequest{
		BookingID:       b.ID,
		StudentID:       e.student.ID,
		NewDate:         nextWednesday,
		AvailabilityIDs: []int64{e.wednesday},
	})
	assert.Equal(t, CodeInvalidStateTransition, CodeOf(err))
}

func TestApproveModificationRequiresTeacher(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	b := e.book()
	m := e.requestReschedule(b)

	_, err := e.engine.Modifications.ApproveModification(ctx, m.ID, e.student.ID, model.Actor{})
	require.ErrorIs(t, err, ErrUnauthorized)

	stored, err := e.stores.Bookings.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, nextMonday, stored.BookingDate)

	pending, err := e.stores.Modifications.GetPendingByBookingID(ctx, b.ID)
	require.NoError(t, err)
	assert.NotNil(t, pending)
}

func TestApproveModificationAfterProposedTime(t *testing.T) {
	e := newTestEnv(t)
	b := e.book()
	m := e.requestReschedule(b)

	e.now = time.Date(2026, 3, 11, 15, 0, 0, 0, time.UTC)
	_, err := e.engine.Modifications.ApproveModification(context.Background(), m.ID, e.teacher.ID, model.Actor{})
	assert.Equal(t, CodeInvalidStateTransition, CodeOf(err))
}

func TestApproveRescheduleIntoTakenSlot(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	b := e.book()
	m := e.requestReschedule(b)

	e.fund(e.other.ID, 10000)
	draft := e.draft(model.WalletMethod{}, []time.Time{nextWednesday}, e.wednesday)
	draft.StudentID = e.other.ID
	_, err := e.engine.Bookings.CreateBooking(ctx, draft)
	require.NoError(t, err)

	_, err = e.engine.Modifications.ApproveModification(ctx, m.ID, e.teacher.ID, model.Actor{})
	require.ErrorIs(t, err, ErrSlotUnavailable)

	stored, err := e.stores.Bookings.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, nextMonday, stored.BookingDate)
	assert.Equal(t, []model.HistoryAction{model.HistoryCreated}, e.history(b.ID))
}

func TestRejectAndCancelModification(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	b := e.book()
	m := e.requestReschedule(b)

	_, err := e.engine.Modifications.RejectModification(ctx, m.ID, e.student.ID, "")
	require.ErrorIs(t, err, ErrUnauthorized)

	rejected, err := e.engine.Modifications.RejectModification(ctx, m.ID, e.teacher.ID, "busy that day")
	require.NoError(t, err)
	assert.Equal(t, model.ModificationStatusRejected, rejected.Status)
	assert.Equal(t, "busy that day", rejected.ResponseNote)
	assert.NotNil(t, rejected.RespondedAt)

	_, err = e.engine.Modifications.CancelModification(ctx, m.ID, e.student.ID)
	assert.Equal(t, CodeInvalidStateTransition, CodeOf(err))

	stored, err := e.stores.Bookings.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, nextMonday, stored.BookingDate)

	// после решения можно запросить снова
	next := e.requestReschedule(b)

	_, err = e.engine.Modifications.CancelModification(ctx, next.ID, e.teacher.ID)
	require.ErrorIs(t, err, ErrUnauthorized)

	cancelled, err := e.engine.Modifications.CancelModification(ctx, next.ID, e.student.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ModificationStatusCancelled, cancelled.Status)

	e.engine.Dispatcher.Wait()
	types := e.notifier.types()
	assert.Contains(t, types, model.EventModificationRejected)
	assert.Contains(t, types, model.EventModificationCancelled)
}

func TestRebookApproved(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	original := e.book()
	e.fund(e.student.ID, 15000)

	m, err := e.engine.Modifications.CreateRebookRequest(ctx, model.ModificationRequest{
		BookingID:       original.ID,
		StudentID:       e.student.ID,
		NewDate:         nextWednesday,
		AvailabilityIDs: []int64{e.wednesday},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ModificationRebook, m.Kind)

	approved, err := e.engine.Modifications.ApproveModification(ctx, m.ID, e.teacher.ID, model.Actor{})
	require.NoError(t, err)
	require.NotNil(t, approved.ResultBookingID)

	rebooked, err := e.stores.Bookings.GetByID(ctx, *approved.ResultBookingID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusApproved, rebooked.Status)
	assert.Equal(t, nextWednesday, rebooked.BookingDate)
	assert.Equal(t, original.SubjectID, rebooked.SubjectID)
	require.NotNil(t, rebooked.RebookedFromID)
	assert.Equal(t, original.ID, *rebooked.RebookedFromID)
	assert.True(t, rebooked.Amount.Equal(ngn(10000)))

	stored, err := e.stores.Bookings.GetByID(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, nextMonday, stored.BookingDate)

	assert.True(t, e.balance(e.student.ID).Equal(ngn(5000)))
	assert.Equal(t, []model.HistoryAction{model.HistoryCreated, model.HistoryRebooked}, e.history(original.ID))
	assert.Equal(t, []model.HistoryAction{model.HistoryCreated}, e.history(rebooked.ID))
	assert.Equal(t, 2, e.countBookings())
}

func TestRebookWithoutFundsKeepsRequestPending(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	original := e.book()

	m, err := e.engine.Modifications.CreateRebookRequest(ctx, model.ModificationRequest{
		BookingID:       original.ID,
		StudentID:       e.student.ID,
		NewDate:         nextWednesday,
		AvailabilityIDs: []int64{e.wednesday},
	})
	require.NoError(t, err)

	_, err = e.engine.Modifications.ApproveModification(ctx, m.ID, e.teacher.ID, model.Actor{})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	stored, err := e.stores.Modifications.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ModificationStatusPending, stored.Status)
	assert.Equal(t, 1, e.countBookings())
	assert.Equal(t, []model.HistoryAction{model.HistoryCreated}, e.history(original.ID))
}

func TestExpireStale(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	b := e.book()
	m := e.requestReschedule(b)

	n, err := e.engine.Modifications.ExpireStale(ctx, time.Date(2026, 3, 11, 13, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = e.engine.Modifications.ExpireStale(ctx, time.Date(2026, 3, 11, 14, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := e.stores.Modifications.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ModificationStatusCancelled, stored.Status)
	assert.Contains(t, stored.ResponseNote, "expired")

	n, err = e.engine.Modifications.ExpireStale(ctx, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExpireStaleInZoneAheadOfUTC(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	b := e.book()

	// 12 марта 08:00 в Окленде (UTC+13) это 11 марта 19:00 UTC
	m := &model.BookingModification{
		Kind:               model.ModificationReschedule,
		BookingID:          b.ID,
		TeacherID:          b.TeacherID,
		StudentID:          b.StudentID,
		NewDate:            time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
		NewStartTime:       model.NewTimeOfDay(8, 0),
		NewEndTime:         model.NewTimeOfDay(9, 0),
		NewDurationMinutes: 60,
		Timezone:           "Pacific/Auckland",
		Status:             model.ModificationStatusPending,
	}
	require.NoError(t, e.stores.Modifications.Create(ctx, m))

	n, err := e.engine.Modifications.ExpireStale(ctx, time.Date(2026, 3, 11, 18, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = e.engine.Modifications.ExpireStale(ctx, time.Date(2026, 3, 11, 19, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := e.stores.Modifications.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ModificationStatusCancelled, stored.Status)
}
