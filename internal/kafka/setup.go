package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Dhoini/billing-sync/pkg/logger"
	kafkaGo "github.com/segmentio/kafka-go"
)

// RequiredTopics топики, которые использует сервис
func RequiredTopics(cfg Config) []kafkaGo.TopicConfig {
	cfg = cfg.WithDefaults()
	return []kafkaGo.TopicConfig{
		{Topic: cfg.EventsTopic, NumPartitions: 3, ReplicationFactor: 1},
		{Topic: cfg.NotifyTopic, NumPartitions: 3, ReplicationFactor: 1},
	}
}

// validateBroker проверяет формат host:port
func validateBroker(broker string) error {
	broker = strings.TrimSpace(broker)
	if broker == "" {
		return errors.New("kafka broker address is empty")
	}
	_, portStr, err := net.SplitHostPort(broker)
	if err != nil {
		return fmt.Errorf("invalid broker address %s: %w", broker, err)
	}
	if _, err := strconv.Atoi(portStr); err != nil {
		return fmt.Errorf("invalid broker port %s: %w", broker, err)
	}
	return nil
}

// missingTopics возвращает топики, которых нет среди существующих
func missingTopics(required []kafkaGo.TopicConfig, partitions []kafkaGo.Partition) []kafkaGo.TopicConfig {
	existing := make(map[string]bool, len(partitions))
	for _, p := range partitions {
		existing[p.Topic] = true
	}
	var missing []kafkaGo.TopicConfig
	for _, tc := range required {
		if !existing[tc.Topic] {
			missing = append(missing, tc)
		}
	}
	return missing
}

// EnsureTopics проверяет и создает недостающие топики через контроллер кластера.
func EnsureTopics(ctx context.Context, brokers []string, topics []kafkaGo.TopicConfig, log *logger.Logger) error {
	if len(brokers) == 0 {
		return errors.New("kafka broker address is empty")
	}
	if err := validateBroker(brokers[0]); err != nil {
		log.Errorw("Invalid Kafka broker address", "broker", brokers[0], "error", err)
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	dialer := &kafkaGo.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(dialCtx, "tcp", strings.TrimSpace(brokers[0]))
	if err != nil {
		log.Errorw("Failed to connect to Kafka broker for topic creation", "broker", brokers[0], "error", err)
		return fmt.Errorf("kafka connection failed: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("kafka read partitions failed: %w", err)
	}

	toCreate := missingTopics(topics, partitions)
	if len(toCreate) == 0 {
		log.Infow("All required Kafka topics already exist")
		return nil
	}

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka controller lookup failed: %w", err)
	}
	controllerAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))

	ctrlConn, err := dialer.DialContext(dialCtx, "tcp", controllerAddr)
	if err != nil {
		return fmt.Errorf("kafka controller connection failed: %w", err)
	}
	defer ctrlConn.Close()

	names := make([]string, 0, len(toCreate))
	for _, tc := range toCreate {
		names = append(names, tc.Topic)
	}
	log.Infow("Creating Kafka topics", "topics", names, "controller", controllerAddr)

	if err := ctrlConn.CreateTopics(toCreate...); err != nil {
		if errors.Is(err, kafkaGo.TopicAlreadyExists) {
			log.Warnw("One or more topics already existed during creation attempt", "topics", names)
			return nil
		}
		return fmt.Errorf("kafka create topics failed: %w", err)
	}
	return nil
}
