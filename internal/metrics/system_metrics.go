package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/Dhoini/entitlement-service/internal/domain"
	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CountSource reports row counts of the billing tables
type CountSource interface {
	CountRecords(ctx context.Context) (domain.BillingCounts, error)
}

// SystemMetrics periodically exports process and store gauges
type SystemMetrics interface {
	Record(ctx context.Context)
	StartRecording(interval time.Duration)
	Stop()
}

type systemMetrics struct {
	log        *logger.Logger
	counts     CountSource
	goroutines prometheus.Gauge
	rows       *prometheus.GaugeVec
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewSystemMetrics creates the gauges. counts may be nil, then only process
// gauges are recorded.
func NewSystemMetrics(registry *prometheus.Registry, counts CountSource, log *logger.Logger) SystemMetrics {
	factory := promauto.With(registry)

	return &systemMetrics{
		log:    log,
		counts: counts,
		goroutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "system_goroutines",
				Help: "Current number of goroutines",
			},
		),
		rows: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "billing_store_rows",
				Help: "Rows in the local billing store by table",
			},
			[]string{"table"},
		),
		stopCh: make(chan struct{}),
	}
}

// Record samples all gauges once
func (m *systemMetrics) Record(ctx context.Context) {
	m.goroutines.Set(float64(runtime.NumGoroutine()))

	if m.counts == nil {
		return
	}
	counts, err := m.counts.CountRecords(ctx)
	if err != nil {
		m.log.Warnw("failed to sample billing store counts", "error", err)
		return
	}
	m.rows.WithLabelValues("subscriptions").Set(float64(counts.Subscriptions))
	m.rows.WithLabelValues("payments").Set(float64(counts.Payments))
	m.rows.WithLabelValues("redemptions").Set(float64(counts.Redemptions))
}

// StartRecording samples on every tick until Stop
func (m *systemMetrics) StartRecording(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				m.Record(ctx)
				cancel()
			case <-m.stopCh:
				return
			}
		}
	}()
	m.log.Info("System metrics recording started with interval %s", interval)
}

// Stop ends the recording loop
func (m *systemMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.log.Info("System metrics recording stopped")
	})
}
