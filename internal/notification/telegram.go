// Package notification доставка событий движка участникам: Telegram, Kafka, лог
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// MessageSender часть *bot.Bot, нужная уведомлениям
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// UserLookup поиск получателя уведомления
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// TelegramNotifier отправляет события получателям в личные сообщения
type TelegramNotifier struct {
	sender MessageSender
	users  UserLookup
	logger *zap.Logger
}

func NewTelegramNotifier(sender MessageSender, users UserLookup, logger *zap.Logger) *TelegramNotifier {
	return &TelegramNotifier{sender: sender, users: users, logger: logger}
}

func (n *TelegramNotifier) Notify(ctx context.Context, event model.Event) error {
	text := FormatEvent(event)

	var errs []error
	for _, userID := range event.Recipients {
		user, err := n.users.GetByID(ctx, userID)
		if err != nil {
			errs = append(errs, fmt.Errorf("get recipient %d: %w", userID, err))
			continue
		}
		if user == nil || user.TelegramID == 0 {
			n.logger.Debug("Recipient has no telegram chat, skipping",
				zap.Int64("user_id", userID),
				zap.String("event", string(event.Type)))
			continue
		}

		_, err = n.sender.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: user.TelegramID,
			Text:   text,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("send message to user %d: %w", userID, err))
			continue
		}

		n.logger.Debug("Telegram notification sent",
			zap.Int64("user_id", userID),
			zap.String("event", string(event.Type)))
	}

	return errors.Join(errs...)
}

var eventTitles = map[model.EventType]string{
	model.EventBookingCreated:        "📅 Новое бронирование",
	model.EventBookingApproved:       "✅ Бронирование одобрено",
	model.EventBookingConfirmed:      "✅ Занятие подтверждено",
	model.EventBookingCompleted:      "🎓 Занятие завершено",
	model.EventBookingCancelled:      "❌ Бронирование отменено",
	model.EventPaymentConfirmed:      "💳 Оплата получена",
	model.EventPaymentFailed:         "⚠️ Оплата не прошла",
	model.EventModificationRequested: "🔄 Запрос на перенос занятия",
	model.EventModificationApproved:  "✅ Запрос на перенос одобрен",
	model.EventModificationRejected:  "❌ Запрос на перенос отклонён",
	model.EventModificationCancelled: "↩️ Запрос на перенос отозван",
}

// FormatEvent текст сообщения о событии
func FormatEvent(event model.Event) string {
	title, ok := eventTitles[event.Type]
	if !ok {
		title = string(event.Type)
	}

	var sb strings.Builder
	sb.WriteString(title)

	if len(event.BookingIDs) > 0 {
		ids := make([]string, len(event.BookingIDs))
		for i, id := range event.BookingIDs {
			ids[i] = fmt.Sprintf("#%d", id)
		}
		sb.WriteString("\nБронирования: ")
		sb.WriteString(strings.Join(ids, ", "))
	}
	if event.ModificationID != 0 {
		fmt.Fprintf(&sb, "\nЗапрос: #%d", event.ModificationID)
	}
	if reason, ok := event.Payload["reason"].(string); ok && reason != "" {
		sb.WriteString("\nПричина: ")
		sb.WriteString(reason)
	}
	if url, ok := event.Payload["action_url"].(string); ok && url != "" {
		sb.WriteString("\nЗавершите оплату: ")
		sb.WriteString(url)
	}

	return sb.String()
}
