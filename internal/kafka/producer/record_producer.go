package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/billing-sync/internal/domain"
	"github.com/Dhoini/billing-sync/pkg/logger"
	"github.com/IBM/sarama"
)

// RecordChangeProducer публикует изменения записей в Kafka через sarama.SyncProducer
type RecordChangeProducer struct {
	producer sarama.SyncProducer
	topic    string
	log      *logger.Logger
}

// NewRecordChangeProducer создает новый продюсер изменений записей
func NewRecordChangeProducer(producer sarama.SyncProducer, topic string, log *logger.Logger) *RecordChangeProducer {
	return &RecordChangeProducer{
		producer: producer,
		topic:    topic,
		log:      log,
	}
}

// Dial подключается к брокерам и создает продюсер
func Dial(brokers []string, topic string, cfg *sarama.Config, log *logger.Logger) (*RecordChangeProducer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}
	syncProducer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create sarama producer: %w", err)
	}
	log.Infow("Record change producer connected", "brokers", brokers, "topic", topic)
	return NewRecordChangeProducer(syncProducer, topic, log), nil
}

// NotifyRecordChange публикует изменение. Ключ - customerId, поэтому события клиента упорядочены в партиции.
func (p *RecordChangeProducer) NotifyRecordChange(ctx context.Context, change domain.RecordChange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if change.OccurredAt.IsZero() {
		change.OccurredAt = time.Now().UTC()
	}

	value, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to marshal record change: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(change.CustomerID),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(change.Kind)},
			{Key: []byte("source_event"), Value: []byte(change.SourceEvent)},
		},
		Timestamp: change.OccurredAt,
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to publish record change: %w", err)
	}

	p.log.Debugw("Published record change", "topic", p.topic, "kind", string(change.Kind),
		"customerID", change.CustomerID, "partition", partition, "offset", offset)
	return nil
}

// Close закрывает продюсер
func (p *RecordChangeProducer) Close() error {
	return p.producer.Close()
}
