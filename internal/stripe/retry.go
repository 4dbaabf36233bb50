package stripe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/Dhoini/entitlement-service/internal/domain"
	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/cenkalti/backoff/v4"
	"github.com/stripe/stripe-go/v78"
)

// RetryConfig bounds the retry of transient processor failures
type RetryConfig struct {
	MaxAttempts int
	Step        time.Duration
	MaxInterval time.Duration
}

// RetryObserver is notified before every retry
type RetryObserver func(operation string)

// Retrier runs processor calls with bounded attempts and linear back-off
type Retrier struct {
	cfg     RetryConfig
	observe RetryObserver
	log     *logger.Logger
}

// NewRetrier creates a Retrier. observe may be nil.
func NewRetrier(cfg RetryConfig, observe RetryObserver, log *logger.Logger) *Retrier {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = cfg.Step
	}
	return &Retrier{cfg: cfg, observe: observe, log: log}
}

// linearBackOff waits step, 2*step, 3*step... capped at max
type linearBackOff struct {
	step    time.Duration
	max     time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	d := b.step * time.Duration(b.attempt)
	if d > b.max {
		return b.max
	}
	return d
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

// Do runs fn until it succeeds, fails permanently, or runs out of attempts.
// An exhausted transient failure is wrapped with domain.ErrTransient.
func (r *Retrier) Do(ctx context.Context, operation string, fn func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{step: r.cfg.Step, max: r.cfg.MaxInterval}, uint64(r.cfg.MaxAttempts-1)),
		ctx,
	)

	op := func() error {
		err := fn()
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.log.Warnw("transient processor failure, retrying",
			"operation", operation,
			"wait", wait,
			"error", err,
		)
		if r.observe != nil {
			r.observe(operation)
		}
	}

	err := backoff.RetryNotify(op, policy, notify)
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		return fmt.Errorf("%w: %s: %w", domain.ErrTransient, operation, err)
	}
	return err
}

// call is Do for operations that produce a value
func call[T any](ctx context.Context, r *Retrier, operation string, fn func() (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, operation, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

var transientSignatures = []string{
	"connection reset",
	"econnreset",
	"broken pipe",
	"unexpected eof",
	"socket hang up",
	"i/o timeout",
	"connection refused",
	"api_connection_error",
}

// IsTransient classifies an error as worth retrying. Caller cancellation and
// processor rejections of the request itself are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if string(stripeErr.Type) == "api_connection_error" {
			return true
		}
		switch code := stripeErr.HTTPStatusCode; {
		case code == 429:
			return true
		case code >= 500 && code != 501:
			return true
		case code != 0:
			return false
		}
	}

	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
