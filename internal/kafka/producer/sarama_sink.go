package producer

import (
	"context"
	"fmt"
	"time"

	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/IBM/sarama"
)

// SaramaSink writes messages through a sarama SyncProducer
type SaramaSink struct {
	producer sarama.SyncProducer
	log      *logger.Logger
}

// NewSaramaSink wraps an existing SyncProducer
func NewSaramaSink(producer sarama.SyncProducer, log *logger.Logger) *SaramaSink {
	return &SaramaSink{producer: producer, log: log}
}

// Dial creates a SyncProducer for the brokers
func Dial(brokers []string, cfg *sarama.Config, log *logger.Logger) (*SaramaSink, error) {
	sp, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create sarama producer: %w", err)
	}
	log.Infow("Kafka producer initialized", "brokers", brokers, "driver", "sarama")
	return NewSaramaSink(sp, log), nil
}

// Write sends one message synchronously. The topic is also set as the
// event_type header.
func (s *SaramaSink) Write(ctx context.Context, topic string, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.ByteEncoder(key),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("event_type"),
				Value: []byte(topic),
			},
		},
		Timestamp: time.Now(),
	}

	partition, offset, err := s.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	s.log.Debug("Published event to topic %s: partition=%d offset=%d", topic, partition, offset)
	return nil
}

// Close closes the producer
func (s *SaramaSink) Close() error {
	return s.producer.Close()
}
