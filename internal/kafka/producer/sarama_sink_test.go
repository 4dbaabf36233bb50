package producer

import (
	"context"
	"errors"
	"testing"

	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaramaSinkWrite(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	sp := mocks.NewSyncProducer(t, cfg)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"user_id":"u1"}` {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})

	sink := NewSaramaSink(sp, logger.NewNop())
	require.NoError(t, sink.Write(context.Background(), "billing.entitlement_granted", []byte("u1"), []byte(`{"user_id":"u1"}`)))
	require.NoError(t, sink.Close())
}

func TestSaramaSinkWriteFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	sink := NewSaramaSink(sp, logger.NewNop())
	err := sink.Write(context.Background(), "t", nil, []byte("{}"))

	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, sink.Close())
}

func TestSaramaSinkHonoursCanceledContext(t *testing.T) {
	sp := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	sink := NewSaramaSink(sp, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, sink.Write(ctx, "t", nil, nil), context.Canceled)
	require.NoError(t, sink.Close())
}
