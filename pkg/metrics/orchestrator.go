package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// OrchestratorMetrics observes command-level outcomes: one observation per
// create/delete/modify/replace/list/info invocation.
type OrchestratorMetrics struct {
	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
	lockWait        *prometheus.HistogramVec
}

// NewOrchestratorMetrics returns nil if metrics are not enabled.
func NewOrchestratorMetrics() *OrchestratorMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()
	return &OrchestratorMetrics{
		commandsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "blockd_commands_total",
				Help: "Admin commands by op and terminal status.",
			},
			[]string{"op", "status"},
		),
		commandDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blockd_command_duration_seconds",
				Help:    "Wall-clock duration of an admin command from validate to render.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"op"},
		),
		retriesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "blockd_create_spare_retries_total",
				Help: "Spare-node retry attempts performed by create's audit loop.",
			},
			[]string{"outcome"}, // exhausted, recovered
		),
		lockWait: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blockd_metadata_lock_wait_seconds",
				Help:    "Time spent waiting to acquire a volume's metadata lock.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
	}
}

func (m *OrchestratorMetrics) RecordCommand(op, status string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(op, status).Inc()
}

func (m *OrchestratorMetrics) ObserveCommandDuration(op string, seconds float64) {
	if m == nil {
		return
	}
	m.commandDuration.WithLabelValues(op).Observe(seconds)
}

func (m *OrchestratorMetrics) RecordSpareRetry(outcome string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(outcome).Inc()
}

func (m *OrchestratorMetrics) ObserveLockWait(op string, seconds float64) {
	if m == nil {
		return
	}
	m.lockWait.WithLabelValues(op).Observe(seconds)
}
