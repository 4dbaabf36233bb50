package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Dhoini/entitlement-service/pkg/logger"
	kafkaGo "github.com/segmentio/kafka-go"
)

// RequiredTopics returns the topic configs for the prefix
func RequiredTopics(prefix string) []kafkaGo.TopicConfig {
	topics := make([]kafkaGo.TopicConfig, 0, len(Topics()))
	for _, suffix := range Topics() {
		topics = append(topics, kafkaGo.TopicConfig{
			Topic:             TopicName(prefix, suffix),
			NumPartitions:     3,
			ReplicationFactor: 1,
		})
	}
	return topics
}

// ValidateBroker checks that addr is host:port with a numeric port
func ValidateBroker(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("kafka broker address is empty")
	}
	_, portStr, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return fmt.Errorf("invalid broker address %s: %w", addr, err)
	}
	if _, err := strconv.Atoi(portStr); err != nil {
		return fmt.Errorf("invalid broker port %s: %w", addr, err)
	}
	return nil
}

// EnsureKafkaTopics creates the missing topics through the first broker
func EnsureKafkaTopics(ctx context.Context, brokers []string, prefix string, log *logger.Logger) error {
	if len(brokers) == 0 {
		return errors.New("kafka broker address is empty")
	}
	if err := ValidateBroker(brokers[0]); err != nil {
		log.Errorw("Invalid Kafka broker address", "broker", brokers[0], "error", err)
		return err
	}

	connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, err := kafkaGo.DialContext(connCtx, "tcp", strings.TrimSpace(brokers[0]))
	if err != nil {
		log.Errorw("Failed to connect to Kafka broker for topic creation", "broker", brokers[0], "error", err)
		return fmt.Errorf("kafka connection failed: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("kafka read partitions failed: %w", err)
	}

	existing := make(map[string]bool)
	for _, p := range partitions {
		existing[p.Topic] = true
	}

	var missing []kafkaGo.TopicConfig
	for _, tc := range RequiredTopics(prefix) {
		if !existing[tc.Topic] {
			missing = append(missing, tc)
		}
	}
	if len(missing) == 0 {
		log.Infow("All required topics already exist")
		return nil
	}

	if err := conn.CreateTopics(missing...); err != nil && !errors.Is(err, kafkaGo.TopicAlreadyExists) {
		log.Errorw("Failed to create topics", "error", err)
		return fmt.Errorf("kafka create topics failed: %w", err)
	}

	log.Infow("Created Kafka topics", "count", len(missing))
	return nil
}
