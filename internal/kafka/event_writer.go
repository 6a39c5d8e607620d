package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/billing-sync/pkg/logger"
	"github.com/google/uuid"
	kafkaGo "github.com/segmentio/kafka-go"
)

// messageWriter часть *kafka.Writer, нужная EventWriter
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkaGo.Message) error
	Close() error
}

// EventWriter отправляет payload webhook-событий в топик Kafka
type EventWriter struct {
	writer messageWriter
	topic  string
	log    *logger.Logger
}

// NewEventWriter создает writer для топика событий
func NewEventWriter(cfg Config, log *logger.Logger) (*EventWriter, error) {
	if len(cfg.Brokers) == 0 {
		log.Errorw("Kafka brokers list is empty in config, cannot create event writer")
		return nil, errors.New("kafka brokers are not configured")
	}
	cfg = cfg.WithDefaults()

	writer := &kafkaGo.Writer{
		Addr:         kafkaGo.TCP(cfg.Brokers...),
		Topic:        cfg.EventsTopic,
		Balancer:     &kafkaGo.LeastBytes{},
		RequiredAcks: kafkaGo.RequireOne,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	log.Infow("Kafka event writer initialized", "brokers", cfg.Brokers, "topic", cfg.EventsTopic)
	return newEventWriter(writer, cfg.EventsTopic, log), nil
}

func newEventWriter(w messageWriter, topic string, log *logger.Logger) *EventWriter {
	return &EventWriter{writer: w, topic: topic, log: log}
}

// Enqueue записывает payload в Kafka. Ответ webhook не ждет обработки.
func (w *EventWriter) Enqueue(ctx context.Context, payload []byte) error {
	deliveryID := uuid.NewString()

	// контекст запроса может быть отменен, пока идет запись
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	err := w.writer.WriteMessages(writeCtx, kafkaGo.Message{
		Key:   []byte(partitionKey(payload, deliveryID)),
		Value: payload,
		Time:  time.Now(),
		Headers: []kafkaGo.Header{
			{Key: "delivery_id", Value: []byte(deliveryID)},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			w.log.Errorw("Kafka write timeout exceeded", "error", err, "topic", w.topic, "deliveryID", deliveryID)
			return fmt.Errorf("kafka: write timeout: %w", err)
		}
		w.log.Errorw("Failed to write webhook event to Kafka", "error", err, "topic", w.topic, "deliveryID", deliveryID)
		return fmt.Errorf("kafka: failed to write message: %w", err)
	}

	w.log.Debugw("Webhook event written to Kafka", "topic", w.topic, "deliveryID", deliveryID)
	return nil
}

// partitionKey события одного клиента попадают в одну партицию.
// Для customer.* клиент - сам объект, для подписок - поле customer.
func partitionKey(payload []byte, fallback string) string {
	var envelope struct {
		Data struct {
			Object struct {
				ID       string          `json:"id"`
				Customer json.RawMessage `json:"customer"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fallback
	}
	obj := envelope.Data.Object

	if customer := customerID(obj.Customer); customer != "" {
		return customer
	}
	if obj.ID != "" {
		return obj.ID
	}
	return fallback
}

// customerID поле customer бывает строкой или раскрытым объектом
func customerID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var id string
	if json.Unmarshal(raw, &id) == nil {
		return id
	}
	var expanded struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(raw, &expanded) == nil {
		return expanded.ID
	}
	return ""
}

// Close закрывает соединение Kafka Writer.
func (w *EventWriter) Close() error {
	w.log.Infow("Closing Kafka event writer...")
	if err := w.writer.Close(); err != nil {
		w.log.Errorw("Failed to close Kafka writer", "error", err)
		return fmt.Errorf("kafka: failed to close writer: %w", err)
	}
	return nil
}
