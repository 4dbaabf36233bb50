package stripe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"
	"time"

	"github.com/Dhoini/entitlement-service/internal/domain"
	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"
)

func newTestRetrier(attempts int, observe RetryObserver) *Retrier {
	return NewRetrier(RetryConfig{MaxAttempts: attempts, Step: time.Millisecond, MaxInterval: 3 * time.Millisecond}, observe, logger.NewNop())
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"econnreset", errors.New("socket error ECONNRESET"), true},
		{"socket hang up", errors.New("socket hang up"), true},
		{"wrapped syscall", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"unexpected eof", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), true},
		{"rate limited", &stripe.Error{HTTPStatusCode: 429}, true},
		{"server error", &stripe.Error{HTTPStatusCode: 503, Type: stripe.ErrorTypeAPI}, true},
		{"not implemented", &stripe.Error{HTTPStatusCode: 501}, false},
		{"bad request", &stripe.Error{HTTPStatusCode: 400, Type: stripe.ErrorTypeInvalidRequest}, false},
		{"api connection", &stripe.Error{Type: "api_connection_error"}, true},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("no such coupon"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestLinearBackOff(t *testing.T) {
	b := &linearBackOff{step: 10 * time.Millisecond, max: 25 * time.Millisecond}

	assert.Equal(t, 10*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 20*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 25*time.Millisecond, b.NextBackOff())

	b.Reset()
	assert.Equal(t, 10*time.Millisecond, b.NextBackOff())
}

func TestRetrierRecoversFromTransientFailure(t *testing.T) {
	retries := 0
	r := newTestRetrier(3, func(string) { retries++ })

	calls := 0
	err := r.Do(context.Background(), "op", func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestRetrierGivesUpAfterMaxAttempts(t *testing.T) {
	r := newTestRetrier(3, nil)

	calls := 0
	err := r.Do(context.Background(), "op", func() error {
		calls++
		return errors.New("i/o timeout")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, 3, calls)
}

func TestRetrierDoesNotRetryPermanentErrors(t *testing.T) {
	r := newTestRetrier(5, nil)
	permanent := &stripe.Error{HTTPStatusCode: 400, Msg: "No such coupon"}

	calls := 0
	err := r.Do(context.Background(), "op", func() error {
		calls++
		return permanent
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, permanent)
	assert.NotErrorIs(t, err, domain.ErrTransient)
}

func TestCallReturnsValue(t *testing.T) {
	r := newTestRetrier(2, nil)

	calls := 0
	v, err := call(context.Background(), r, "op", func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("broken pipe")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}
