package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	topic string
	key   string
	value []byte
}

type recordingSink struct {
	messages []message
	err      error
	closed   bool
}

func (s *recordingSink) Write(_ context.Context, topic string, key, value []byte) error {
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, message{topic: topic, key: string(key), value: value})
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func TestPublisherEncodesEntitlementEvent(t *testing.T) {
	sink := &recordingSink{}
	p := NewPublisher(sink, "billing", logger.NewNop())

	end := time.Date(2025, 4, 1, 23, 59, 59, 0, time.UTC)
	err := p.PublishEntitlementGranted(context.Background(), EntitlementEvent{
		UserID:    "u1",
		Plan:      "premium",
		Source:    "promo_grant",
		Code:      "WELCOME2025",
		PeriodEnd: &end,
	})
	require.NoError(t, err)
	require.Len(t, sink.messages, 1)

	msg := sink.messages[0]
	assert.Equal(t, "billing.entitlement_granted", msg.topic)
	assert.Equal(t, "u1", msg.key)

	var decoded EntitlementEvent
	require.NoError(t, json.Unmarshal(msg.value, &decoded))
	assert.Equal(t, "WELCOME2025", decoded.Code)

	require.NoError(t, p.Close())
	assert.True(t, sink.closed)
}

func TestPublisherPropagatesSinkError(t *testing.T) {
	sink := &recordingSink{err: errors.New("broker down")}
	p := NewPublisher(sink, "", logger.NewNop())

	err := p.PublishSyncCompleted(context.Background(), SyncCompletedEvent{TriggeredBy: "owner"})
	assert.EqualError(t, err, "broker down")
}

func TestRequiredTopics(t *testing.T) {
	topics := RequiredTopics("billing")
	require.Len(t, topics, 3)
	assert.Equal(t, "billing.entitlement_granted", topics[0].Topic)
	assert.Equal(t, "sync_completed", TopicName("", TopicSyncCompleted))
}

func TestValidateBroker(t *testing.T) {
	assert.NoError(t, ValidateBroker("localhost:9092"))
	assert.Error(t, ValidateBroker(""))
	assert.Error(t, ValidateBroker("localhost"))
	assert.Error(t, ValidateBroker("localhost:abc"))
}

func TestNewWriterSinkRequiresBrokers(t *testing.T) {
	_, err := NewWriterSink(nil, logger.NewNop())
	assert.Error(t, err)
}
