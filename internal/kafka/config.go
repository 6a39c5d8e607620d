package kafka

import (
	"time"

	"github.com/IBM/sarama"
)

// Топики по умолчанию
const (
	DefaultEventsTopic = "stripe_webhook_events"
	DefaultNotifyTopic = "billing_record_changes"
	DefaultGroupID     = "billing-sync"
)

// Config конфигурация для Kafka
type Config struct {
	Brokers     []string
	EventsTopic string
	GroupID     string
	NotifyTopic string
}

// WithDefaults заполняет пустые поля значениями по умолчанию
func (c Config) WithDefaults() Config {
	if c.EventsTopic == "" {
		c.EventsTopic = DefaultEventsTopic
	}
	if c.GroupID == "" {
		c.GroupID = DefaultGroupID
	}
	if c.NotifyTopic == "" {
		c.NotifyTopic = DefaultNotifyTopic
	}
	return c
}

// NewSaramaProducerConfig создает конфигурацию sarama для синхронного продюсера
func NewSaramaProducerConfig() *sarama.Config {
	saramaConfig := sarama.NewConfig()

	saramaConfig.Version = sarama.V3_3_0_0
	saramaConfig.ClientID = DefaultGroupID

	saramaConfig.Producer.MaxMessageBytes = 1000000
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Retry.Backoff = 250 * time.Millisecond
	saramaConfig.Producer.Timeout = 10 * time.Second
	// SyncProducer требует оба флага
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	return saramaConfig
}
