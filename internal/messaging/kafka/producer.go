package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mediashop/internal/domain"
)

// Producer публикует события fulfillment-ядра в Kafka.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *log.Entry
}

// NewProducer создаёт Kafka producer с идемпотентной доставкой.
func NewProducer(brokers []string, topic string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1 // Требование идемпотентного продьюсера.

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	if topic == "" {
		topic = TopicOrderEvents
	}

	return &Producer{
		producer: producer,
		topic:    topic,
		logger:   log.WithField("component", "kafka-producer"),
	}, nil
}

// Publish отправляет outbox-сообщение в Kafka. Ключ партиционирования —
// идентификатор агрегата, так события одного заказа сохраняют порядок.
func (p *Producer) Publish(msg domain.OutboxMessage) error {
	event := OrderEvent{
		EventID:   uuid.NewString(),
		EventType: msg.EventType,
		OrderID:   msg.AggregateID,
		Timestamp: time.Now().UTC(),
		Payload:   json.RawMessage(msg.Payload),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(msg.AggregateID),
		Value:     sarama.ByteEncoder(data),
		Timestamp: event.Timestamp,
	}

	partition, offset, err := p.producer.SendMessage(kafkaMsg)
	if err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"topic":      p.topic,
			"event_type": msg.EventType,
			"order_id":   msg.AggregateID,
		}).Error("failed to send message to kafka")
		return fmt.Errorf("send message: %w", err)
	}

	p.logger.WithFields(log.Fields{
		"topic":     p.topic,
		"partition": partition,
		"offset":    offset,
		"order_id":  msg.AggregateID,
	}).Debug("message sent to kafka")

	return nil
}

// Close закрывает producer.
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

var _ domain.OutboxPublisher = (*Producer)(nil)
