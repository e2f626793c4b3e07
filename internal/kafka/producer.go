package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/leettogether/leetstreak/internal/domain"
)

// Producer publishes JSON messages
type Producer struct {
	producer sarama.SyncProducer
	logger   *slog.Logger
}

// NewProducer connects a synchronous producer to brokers
func NewProducer(brokers []string, logger *slog.Logger) (*Producer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	sp, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}
	return NewProducerWith(sp, logger), nil
}

// NewProducerWith wraps an existing producer
func NewProducerWith(sp sarama.SyncProducer, logger *slog.Logger) *Producer {
	return &Producer{producer: sp, logger: logger}
}

// SendJSON publishes v to topic under key
func (p *Producer) SendJSON(topic, key string, v any) (int32, int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, 0, fmt.Errorf("encoding message: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return 0, 0, fmt.Errorf("sending to %s: %w", topic, err)
	}
	p.logger.Debug("message sent", "topic", topic, "key", key, "partition", partition, "offset", offset)
	return partition, offset, nil
}

// SendRegistration validates and publishes a registration event. It fills
// in the id and timestamp when unset
func (p *Producer) SendRegistration(topic string, ev RegistrationEvent) (RegistrationEvent, error) {
	if err := ev.Validate(); err != nil {
		return ev, err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if _, _, err := p.SendJSON(topic, ev.DiscordID, ev); err != nil {
		return ev, err
	}
	return ev, nil
}

// Close flushes and closes the producer
func (p *Producer) Close() error {
	return p.producer.Close()
}

// EventPublisher mirrors bot events to a topic
type EventPublisher struct {
	producer *Producer
	topic    string
}

// NewEventPublisher creates an EventPublisher
func NewEventPublisher(p *Producer, topic string) *EventPublisher {
	return &EventPublisher{producer: p, topic: topic}
}

// Publish sends ev keyed by its user, or by its type for channel-wide
// events
func (e *EventPublisher) Publish(_ context.Context, ev domain.Event) error {
	key := ev.DiscordID
	if key == "" {
		key = ev.Type
	}
	_, _, err := e.producer.SendJSON(e.topic, key, ev)
	return err
}
