package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// FanoutMetrics observes the fan-out executor's per-worker outcomes.
// All methods are nil-safe so callers can pass a nil *FanoutMetrics when
// metrics are disabled.
type FanoutMetrics struct {
	workersTotal   *prometheus.CounterVec
	workerDuration *prometheus.HistogramVec
	planSize       prometheus.Histogram
}

// NewFanoutMetrics returns nil if metrics are not enabled.
func NewFanoutMetrics() *FanoutMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()
	return &FanoutMetrics{
		workersTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "blockd_fanout_workers_total",
				Help: "Fan-out worker completions by operation and outcome.",
			},
			[]string{"op", "outcome"}, // outcome: succeeded, failed
		),
		workerDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blockd_fanout_worker_duration_seconds",
				Help:    "Per-peer RPC round trip time within a fan-out plan.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		planSize: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "blockd_fanout_plan_size",
				Help:    "Number of peers in a fan-out plan.",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
			},
		),
	}
}

func (m *FanoutMetrics) RecordWorker(op, outcome string) {
	if m == nil {
		return
	}
	m.workersTotal.WithLabelValues(op, outcome).Inc()
}

func (m *FanoutMetrics) ObserveWorkerDuration(op string, seconds float64) {
	if m == nil {
		return
	}
	m.workerDuration.WithLabelValues(op).Observe(seconds)
}

func (m *FanoutMetrics) ObservePlanSize(n int) {
	if m == nil {
		return
	}
	m.planSize.Observe(float64(n))
}
