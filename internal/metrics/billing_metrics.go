package metrics

import (
	"time"

	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BillingMetrics records the outcomes of entitlement and billing operations
type BillingMetrics interface {
	IncResolution(source string)
	IncRedemption(outcome string)
	IncCheckout(mode string, discount string)
	AddSynced(kind string, n int)
	IncSyncSkipped(kind string)
	IncSyncFailure(stage string)
	ObserveSyncDuration(d time.Duration)
	IncProcessorRetry(operation string)
	IncSideEffectFailure(name string)
}

type billingMetrics struct {
	log               *logger.Logger
	resolutions       *prometheus.CounterVec
	redemptions       *prometheus.CounterVec
	checkouts         *prometheus.CounterVec
	synced            *prometheus.CounterVec
	syncSkipped       *prometheus.CounterVec
	syncFailures      *prometheus.CounterVec
	syncDuration      prometheus.Histogram
	processorRetries  *prometheus.CounterVec
	sideEffectFailure *prometheus.CounterVec
}

// NewBillingMetrics registers billing metrics on registry
func NewBillingMetrics(registry *prometheus.Registry, log *logger.Logger) BillingMetrics {
	factory := promauto.With(registry)

	return &billingMetrics{
		log: log,
		resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entitlement_resolutions_total",
				Help: "Entitlement resolutions by the source that decided them",
			},
			[]string{"source"},
		),
		redemptions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "code_redemptions_total",
				Help: "Code redemption attempts by outcome",
			},
			[]string{"outcome"},
		),
		checkouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_sessions_total",
				Help: "Created checkout sessions by mode and discount resolution",
			},
			[]string{"mode", "discount"},
		),
		synced: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_sync_records_total",
				Help: "Records upserted by reconciliation sync",
			},
			[]string{"kind"},
		),
		syncSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_sync_skipped_total",
				Help: "Processor records ignored by reconciliation sync",
			},
			[]string{"kind"},
		),
		syncFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_sync_failures_total",
				Help: "Per-record failures swallowed by reconciliation sync",
			},
			[]string{"stage"},
		),
		syncDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "billing_sync_duration_seconds",
				Help:    "Duration of reconciliation sync runs",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
		processorRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "processor_retries_total",
				Help: "Retries of transient payment processor failures",
			},
			[]string{"operation"},
		),
		sideEffectFailure: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "non_critical_failures_total",
				Help: "Failed best-effort side effects",
			},
			[]string{"name"},
		),
	}
}

func (m *billingMetrics) IncResolution(source string) {
	m.resolutions.WithLabelValues(source).Inc()
}

func (m *billingMetrics) IncRedemption(outcome string) {
	m.redemptions.WithLabelValues(outcome).Inc()
}

func (m *billingMetrics) IncCheckout(mode string, discount string) {
	m.checkouts.WithLabelValues(mode, discount).Inc()
}

func (m *billingMetrics) AddSynced(kind string, n int) {
	if n <= 0 {
		return
	}
	m.synced.WithLabelValues(kind).Add(float64(n))
}

func (m *billingMetrics) IncSyncSkipped(kind string) {
	m.syncSkipped.WithLabelValues(kind).Inc()
}

func (m *billingMetrics) IncSyncFailure(stage string) {
	m.syncFailures.WithLabelValues(stage).Inc()
}

func (m *billingMetrics) ObserveSyncDuration(d time.Duration) {
	m.syncDuration.Observe(d.Seconds())
}

func (m *billingMetrics) IncProcessorRetry(operation string) {
	m.processorRetries.WithLabelValues(operation).Inc()
}

func (m *billingMetrics) IncSideEffectFailure(name string) {
	m.log.Debugw("non-critical failure recorded", "name", name)
	m.sideEffectFailure.WithLabelValues(name).Inc()
}
