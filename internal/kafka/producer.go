package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/entitlement-service/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// Publisher publishes billing events
type Publisher interface {
	PublishEntitlementGranted(ctx context.Context, event EntitlementEvent) error
	PublishEntitlementRevoked(ctx context.Context, event EntitlementEvent) error
	PublishSyncCompleted(ctx context.Context, event SyncCompletedEvent) error
	Close() error
}

// Sink writes one keyed message to a topic. It is implemented by the
// kafka-go writer here and by the sarama producer in package producer.
type Sink interface {
	Write(ctx context.Context, topic string, key, value []byte) error
	Close() error
}

type publisher struct {
	sink   Sink
	prefix string
	log    *logger.Logger
}

// NewPublisher encodes events as JSON and hands them to sink
func NewPublisher(sink Sink, topicPrefix string, log *logger.Logger) Publisher {
	return &publisher{sink: sink, prefix: topicPrefix, log: log}
}

func (p *publisher) PublishEntitlementGranted(ctx context.Context, event EntitlementEvent) error {
	return p.publish(ctx, TopicEntitlementGranted, event.UserID, event)
}

func (p *publisher) PublishEntitlementRevoked(ctx context.Context, event EntitlementEvent) error {
	return p.publish(ctx, TopicEntitlementRevoked, event.UserID, event)
}

func (p *publisher) PublishSyncCompleted(ctx context.Context, event SyncCompletedEvent) error {
	return p.publish(ctx, TopicSyncCompleted, event.TriggeredBy, event)
}

// publish keys messages by user so one user's events stay ordered
func (p *publisher) publish(ctx context.Context, suffix, key string, event any) error {
	topic := TopicName(p.prefix, suffix)

	value, err := json.Marshal(event)
	if err != nil {
		p.log.Errorw("Failed to marshal event for Kafka", "error", err, "topic", topic)
		return fmt.Errorf("kafka: failed to marshal message data: %w", err)
	}

	if err := p.sink.Write(ctx, topic, []byte(key), value); err != nil {
		p.log.Errorw("Failed to write message to Kafka", "error", err, "topic", topic, "key", key)
		return err
	}

	p.log.Debugw("Published message to Kafka", "topic", topic, "key", key)
	return nil
}

func (p *publisher) Close() error {
	return p.sink.Close()
}

// WriterSink is a Sink on segmentio/kafka-go
type WriterSink struct {
	writer *kafka.Writer
	log    *logger.Logger
}

// NewWriterSink creates a kafka-go writer for the brokers
func NewWriterSink(brokers []string, log *logger.Logger) (*WriterSink, error) {
	if len(brokers) == 0 {
		log.Errorw("Kafka brokers list is empty in config, cannot create producer")
		return nil, errors.New("kafka brokers are not configured")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: false,
	}

	log.Infow("Kafka producer initialized", "brokers", brokers, "driver", "kafka-go")
	return &WriterSink{writer: writer, log: log}, nil
}

// Write sends one message with a bounded timeout
func (w *WriterSink) Write(ctx context.Context, topic string, key, value []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	err := w.writer.WriteMessages(writeCtx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("kafka: write timeout: %w", err)
		}
		return fmt.Errorf("kafka: failed to write message: %w", err)
	}
	return nil
}

// Close flushes and closes the writer
func (w *WriterSink) Close() error {
	w.log.Infow("Closing Kafka producer writer...")
	if err := w.writer.Close(); err != nil {
		w.log.Errorw("Failed to close Kafka writer", "error", err)
		return fmt.Errorf("kafka: failed to close writer: %w", err)
	}
	return nil
}

// NoopPublisher drops every event. Used when kafka.driver is "none".
type NoopPublisher struct{}

func (NoopPublisher) PublishEntitlementGranted(context.Context, EntitlementEvent) error { return nil }
func (NoopPublisher) PublishEntitlementRevoked(context.Context, EntitlementEvent) error { return nil }
func (NoopPublisher) PublishSyncCompleted(context.Context, SyncCompletedEvent) error    { return nil }
func (NoopPublisher) Close() error                                                        { return nil }
