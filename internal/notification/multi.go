package notification

import (
	"context"
	"errors"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"go.uber.org/zap"
)

// Notifier получатель событий
type Notifier interface {
	Notify(ctx context.Context, event model.Event) error
}

// Multi доставляет событие всем каналам. Сбой одного канала не мешает остальным
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event model.Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier пишет события в лог. Используется, когда внешние каналы не настроены
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, event model.Event) error {
	n.logger.Info("Event",
		zap.String("event", string(event.Type)),
		zap.Int64s("recipients", event.Recipients),
		zap.Int64s("booking_ids", event.BookingIDs),
		zap.Int64("modification_id", event.ModificationID),
		zap.Any("payload", event.Payload))
	return nil
}
