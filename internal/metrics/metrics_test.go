package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dhoini/entitlement-service/internal/domain"
	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBillingMetricsCounters(t *testing.T) {
	m := NewBillingMetrics(prometheus.NewRegistry(), logger.NewNop()).(*billingMetrics)

	m.IncResolution("local_grant")
	m.IncResolution("local_grant")
	m.IncRedemption("already_redeemed")
	m.AddSynced("subscriptions", 3)
	m.AddSynced("payments", 0)
	m.IncProcessorRetry("list_subscriptions")
	m.IncCheckout("payment", "coupon")
	m.IncSideEffectFailure("publish_entitlement_granted")
	m.ObserveSyncDuration(2 * time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.resolutions.WithLabelValues("local_grant")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.redemptions.WithLabelValues("already_redeemed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.synced.WithLabelValues("subscriptions")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.synced.WithLabelValues("payments")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.processorRetries.WithLabelValues("list_subscriptions")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkouts.WithLabelValues("payment", "coupon")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sideEffectFailure.WithLabelValues("publish_entitlement_granted")))
}

type stubCounts struct {
	counts domain.BillingCounts
	err    error
}

func (s stubCounts) CountRecords(context.Context) (domain.BillingCounts, error) {
	return s.counts, s.err
}

func TestSystemMetricsRecordStoreRows(t *testing.T) {
	src := stubCounts{counts: domain.BillingCounts{Subscriptions: 4, Payments: 2, Redemptions: 7}}
	m := NewSystemMetrics(prometheus.NewRegistry(), src, logger.NewNop()).(*systemMetrics)

	m.Record(context.Background())

	assert.Equal(t, 4.0, testutil.ToFloat64(m.rows.WithLabelValues("subscriptions")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rows.WithLabelValues("payments")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.rows.WithLabelValues("redemptions")))
	assert.Greater(t, testutil.ToFloat64(m.goroutines), 0.0)
}

func TestSystemMetricsKeepsLastValueOnError(t *testing.T) {
	m := NewSystemMetrics(prometheus.NewRegistry(), stubCounts{err: errors.New("db down")}, logger.NewNop()).(*systemMetrics)

	m.Record(context.Background())
	m.Stop()
	m.Stop()

	assert.Equal(t, 0.0, testutil.ToFloat64(m.rows.WithLabelValues("subscriptions")))
}
