package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// NewKafkaProducer создаёт синхронного продюсера с подтверждением от всех реплик
func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return producer, nil
}

// KafkaNotifier публикует события в топик. Ключ сообщения: первое бронирование
// события, поэтому события одного бронирования попадают в одну партицию
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

func NewKafkaNotifier(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic, logger: logger}
}

func (n *KafkaNotifier) Notify(ctx context.Context, event model.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: n.topic,
		Key:   sarama.StringEncoder(eventKey(event)),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
	}

	partition, offset, err := n.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	n.logger.Debug("Event published",
		zap.String("event", string(event.Type)),
		zap.String("topic", n.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))

	return nil
}

func eventKey(event model.Event) string {
	if len(event.BookingIDs) > 0 {
		return strconv.FormatInt(event.BookingIDs[0], 10)
	}
	if event.ModificationID != 0 {
		return "modification-" + strconv.FormatInt(event.ModificationID, 10)
	}
	return string(event.Type)
}
