package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/billing-sync/internal/webhook"
	"github.com/Dhoini/billing-sync/pkg/logger"
	"github.com/cenkalti/backoff/v4"
	kafkaGo "github.com/segmentio/kafka-go"
)

// messageReader часть *kafka.Reader, нужная EventConsumer
type messageReader interface {
	FetchMessage(ctx context.Context) (kafkaGo.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkaGo.Message) error
	Close() error
}

// EventConsumer читает события из топика и передает их диспетчеру
type EventConsumer struct {
	reader     messageReader
	processor  webhook.EventProcessor
	log        *logger.Logger
	newBackOff func() backoff.BackOff
}

// NewEventConsumer создает консьюмера в группе cfg.GroupID
func NewEventConsumer(cfg Config, processor webhook.EventProcessor, log *logger.Logger) (*EventConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}
	cfg = cfg.WithDefaults()

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.EventsTopic,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        250 * time.Millisecond,
		CommitInterval: 0,
		StartOffset:    kafkaGo.FirstOffset,
	})

	log.Infow("Kafka event consumer initialized", "brokers", cfg.Brokers, "topic", cfg.EventsTopic, "group", cfg.GroupID)
	return newEventConsumer(reader, processor, log), nil
}

func newEventConsumer(r messageReader, processor webhook.EventProcessor, log *logger.Logger) *EventConsumer {
	return &EventConsumer{
		reader:    r,
		processor: processor,
		log:       log,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 500 * time.Millisecond
			bo.MaxInterval = 30 * time.Second
			bo.MaxElapsedTime = 0
			return bo
		},
	}
}

// Run читает сообщения до отмены ctx. Сообщение коммитится после обработки.
func (c *EventConsumer) Run(ctx context.Context) error {
	bo := c.newBackOff()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := bo.NextBackOff()
			if wait == backoff.Stop {
				return fmt.Errorf("kafka: giving up fetching messages: %w", err)
			}
			c.log.Warnw("Failed to fetch message from Kafka, backing off", "error", err, "wait", wait)
			if !sleep(ctx, wait) {
				return nil
			}
			continue
		}
		bo.Reset()

		outcome := c.processor.DispatchRaw(ctx, msg.Value)
		c.log.Debugw("Kafka webhook event processed",
			"partition", msg.Partition, "offset", msg.Offset, "outcome", string(outcome))

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Errorw("Failed to commit Kafka message", "error", err, "partition", msg.Partition, "offset", msg.Offset)
		}
	}
}

// Close закрывает reader
func (c *EventConsumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("kafka: failed to close reader: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
