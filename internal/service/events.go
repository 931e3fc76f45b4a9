package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"go.uber.org/zap"
)

const notifyTimeout = 10 * time.Second

// Dispatcher отправляет уведомления в фоне. Ошибки доставки только логируются
// и никогда не откатывают бронирование или платёж
type Dispatcher struct {
	notifier Notifier
	logger   *zap.Logger
	wg       sync.WaitGroup
}

func NewDispatcher(notifier Notifier, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{notifier: notifier, logger: logger}
}

// Send отправляет событие, не дожидаясь доставки
func (d *Dispatcher) Send(ctx context.Context, event model.Event) {
	if d == nil || d.notifier == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	ctx = context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()

		if err := d.notifier.Notify(ctx, event); err != nil {
			d.logger.Warn("Failed to deliver notification",
				zap.String("event", string(event.Type)),
				zap.Int64s("booking_ids", event.BookingIDs),
				zap.Error(err))
		}
	}()
}

// Wait ждёт завершения отправленных уведомлений
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func appendHistory(ctx context.Context, store HistoryStore, bookingID int64, action model.HistoryAction, actor model.Actor, prev, next any) error {
	h := &model.BookingHistory{
		BookingID: bookingID,
		Action:    action,
		ActorID:   actor.UserID,
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
	}

	if prev != nil {
		data, err := json.Marshal(prev)
		if err != nil {
			return fmt.Errorf("marshal previous state: %w", err)
		}
		h.PreviousData = data
	}
	if next != nil {
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal new state: %w", err)
		}
		h.NewData = data
	}

	return store.Append(ctx, h)
}

func bookingIDs(bookings []*model.Booking) []int64 {
	ids := make([]int64, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
	}
	return ids
}
