package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSender struct {
	sent []*bot.SendMessageParams
	err  error
}

func (f *fakeSender) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, params)
	return &models.Message{}, nil
}

type fakeUsers map[int64]*model.User

func (f fakeUsers) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return f[id], nil
}

func TestTelegramNotifierSendsToRecipientsWithChat(t *testing.T) {
	sender := &fakeSender{}
	users := fakeUsers{
		1: {ID: 1, TelegramID: 1001},
		2: {ID: 2},
	}
	n := NewTelegramNotifier(sender, users, zap.NewNop())

	err := n.Notify(context.Background(), model.Event{
		Type:       model.EventBookingCancelled,
		Recipients: []int64{1, 2, 3},
		BookingIDs: []int64{42},
		Payload:    map[string]any{"reason": "sick"},
	})
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(1001), sender.sent[0].ChatID)
	assert.Contains(t, sender.sent[0].Text, "#42")
	assert.Contains(t, sender.sent[0].Text, "sick")
}

func TestTelegramNotifierReturnsSendErrors(t *testing.T) {
	sender := &fakeSender{err: errors.New("forbidden: bot was blocked by the user")}
	n := NewTelegramNotifier(sender, fakeUsers{1: {ID: 1, TelegramID: 1001}}, zap.NewNop())

	err := n.Notify(context.Background(), model.Event{Type: model.EventBookingApproved, Recipients: []int64{1}})
	assert.ErrorContains(t, err, "blocked")
}

func TestFormatEventIncludesPaymentLink(t *testing.T) {
	text := FormatEvent(model.Event{
		Type:       model.EventBookingCreated,
		BookingIDs: []int64{1, 2},
		Payload:    map[string]any{"action_url": "https://pay.example/1"},
	})

	assert.Contains(t, text, "#1, #2")
	assert.Contains(t, text, "https://pay.example/1")
}

func TestKafkaNotifierPublishesEvent(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	defer producer.Close()

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "7" {
			return errors.New("unexpected key " + string(key))
		}

		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var event model.Event
		if err := json.Unmarshal(value, &event); err != nil {
			return err
		}
		if event.Type != model.EventPaymentConfirmed {
			return errors.New("unexpected event type " + string(event.Type))
		}
		return nil
	})

	n := NewKafkaNotifier(producer, "booking-events", zap.NewNop())
	err := n.Notify(context.Background(), model.Event{
		Type:       model.EventPaymentConfirmed,
		Recipients: []int64{1, 2},
		BookingIDs: []int64{7, 8},
	})
	require.NoError(t, err)
}

func TestKafkaNotifierReturnsProducerError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	defer producer.Close()
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	n := NewKafkaNotifier(producer, "booking-events", zap.NewNop())
	err := n.Notify(context.Background(), model.Event{Type: model.EventBookingCreated, BookingIDs: []int64{1}})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

type countingNotifier struct {
	calls int
	err   error
}

func (c *countingNotifier) Notify(ctx context.Context, event model.Event) error {
	c.calls++
	return c.err
}

func TestMultiDeliversToAllChannels(t *testing.T) {
	failing := &countingNotifier{err: errors.New("down")}
	ok := &countingNotifier{}

	err := Multi{failing, ok, NewLogNotifier(zap.NewNop())}.Notify(context.Background(), model.Event{Type: model.EventBookingCreated})

	assert.ErrorContains(t, err, "down")
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls)
}
